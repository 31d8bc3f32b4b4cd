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
	"go.uber.org/atomic"

	"github.com/aspenchain/aspen/common"
)

// TestSet is a validator set for engine testing: a fixed list plus counters
// recording the most recent block at which malicious/benign behaviour was
// reported. Reports are last-write-wins under concurrent use.
type TestSet struct {
	validators    *SimpleList
	lastMalicious *atomic.Uint64
	lastBenign    *atomic.Uint64
}

var _ ValidatorSet = (*TestSet)(nil)

// NewTestSet creates a TestSet with a single well-known validator.
func NewTestSet() *TestSet {
	return NewTestSetFromValidators([]common.Address{
		common.HexToAddress("7d577a597b2742b498cb5cf0c26cdcd726d39e6e"),
	})
}

// NewTestSetFromValidators creates a TestSet over the given list.
func NewTestSetFromValidators(validators []common.Address) *TestSet {
	return &TestSet{
		validators:    NewSimpleList(validators),
		lastMalicious: atomic.NewUint64(0),
		lastBenign:    atomic.NewUint64(0),
	}
}

// LastMalicious returns the block number of the most recent malicious report.
func (t *TestSet) LastMalicious() uint64 { return t.lastMalicious.Load() }

// LastBenign returns the block number of the most recent benign report.
func (t *TestSet) LastBenign() uint64 { return t.lastBenign.Load() }

func (t *TestSet) DefaultCaller(blockHash common.Hash) (Call, error) {
	return t.validators.DefaultCaller(blockHash)
}

func (t *TestSet) GenerateEngineTransactions(_ bool, _ *Header, _ SystemCall) ([]EngineTransaction, error) {
	return nil, nil
}

func (t *TestSet) OnCloseBlock(_ *Header, _ common.Address) error { return nil }

func (t *TestSet) IsEpochEnd(_ bool, _ *Header) []byte { return nil }

func (t *TestSet) SignalsEpochEnd(_ bool, _ *Header) (EpochChange, []byte) {
	return EpochChangeNo, nil
}

func (t *TestSet) EpochSet(first bool, blockNumber uint64, proof []byte) (SimpleList, *common.Hash, error) {
	return t.validators.EpochSet(first, blockNumber, proof)
}

func (t *TestSet) ContainsWithCaller(blockHash common.Hash, address common.Address, caller Call) bool {
	return t.validators.ContainsWithCaller(blockHash, address, caller)
}

func (t *TestSet) GetWithCaller(blockHash common.Hash, nonce uint64, caller Call) common.Address {
	return t.validators.GetWithCaller(blockHash, nonce, caller)
}

func (t *TestSet) CountWithCaller(blockHash common.Hash, caller Call) uint64 {
	return t.validators.CountWithCaller(blockHash, caller)
}

func (t *TestSet) ReportMalicious(_ common.Address, _, block uint64, _ []byte) {
	t.lastMalicious.Store(block)
}

func (t *TestSet) ReportBenign(_ common.Address, _, block uint64) {
	t.lastBenign.Store(block)
}
