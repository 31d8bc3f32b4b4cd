// Copyright 2024 The Aspen Authors
// This file is part of Aspen.
//
// Aspen is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Aspen is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Aspen. If not, see <http://www.gnu.org/licenses/>.

package valset

import (
	"errors"

	"github.com/aspenchain/aspen/common"
)

// SimpleList is a preconfigured, immutable validator list. The list order
// defines round-robin turn assignment. Fixed lists never change across
// epochs: EpochSet always yields the list itself with no finality proof.
type SimpleList struct {
	validators []common.Address
}

var _ ValidatorSet = (*SimpleList)(nil)

// NewSimpleList creates a validator set from a fixed ordered list of addresses.
func NewSimpleList(validators []common.Address) *SimpleList {
	return &SimpleList{validators: validators}
}

// Validators returns the inner list.
func (s *SimpleList) Validators() []common.Address { return s.validators }

func (s *SimpleList) DefaultCaller(_ common.Hash) (Call, error) {
	return func(common.Address, []byte) ([]byte, error) {
		return nil, errors.New("simple list doesn't require calls")
	}, nil
}

func (s *SimpleList) GenerateEngineTransactions(_ bool, _ *Header, _ SystemCall) ([]EngineTransaction, error) {
	return nil, nil
}

func (s *SimpleList) OnCloseBlock(_ *Header, _ common.Address) error { return nil }

// IsEpochEnd allows instant transition to a fixed list.
func (s *SimpleList) IsEpochEnd(first bool, _ *Header) []byte {
	if first {
		return []byte{}
	}
	return nil
}

func (s *SimpleList) SignalsEpochEnd(_ bool, _ *Header) (EpochChange, []byte) {
	return EpochChangeNo, nil
}

func (s *SimpleList) EpochSet(_ bool, _ uint64, _ []byte) (SimpleList, *common.Hash, error) {
	return SimpleList{validators: s.validators}, nil, nil
}

func (s *SimpleList) ContainsWithCaller(_ common.Hash, address common.Address, _ Call) bool {
	for _, v := range s.validators {
		if v == address {
			return true
		}
	}
	return false
}

func (s *SimpleList) GetWithCaller(_ common.Hash, nonce uint64, _ Call) common.Address {
	n := uint64(len(s.validators))
	if n == 0 {
		panic("cannot operate with an empty validator set")
	}
	return s.validators[nonce%n]
}

func (s *SimpleList) CountWithCaller(_ common.Hash, _ Call) uint64 {
	return uint64(len(s.validators))
}

// ReportMalicious is a no-op: a fixed list has no report sink.
func (s *SimpleList) ReportMalicious(_ common.Address, _, _ uint64, _ []byte) {}

// ReportBenign is a no-op: a fixed list has no report sink.
func (s *SimpleList) ReportBenign(_ common.Address, _, _ uint64) {}
