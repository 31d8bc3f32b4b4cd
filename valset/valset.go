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

// Package valset provides the authority-set abstraction consumed by the
// consensus engine: who may produce blocks, when the set changes (epochs),
// and where misbehaviour reports go.
package valset

import (
	"github.com/aspenchain/aspen/common"
)

// Header is the minimal block-header view the validator set needs.
type Header struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Author     common.Address
}

// Call is a contract call executed in the context of a given block.
// Implementations with no contract backing return an error from DefaultCaller.
type Call func(contract common.Address, data []byte) ([]byte, error)

// SystemCall is a contract call executed as the special system address
// while a block is being closed.
type SystemCall = Call

// EngineTransaction is a transaction the consensus engine injects into a
// block on behalf of a validator set (contract-backed sets only).
type EngineTransaction struct {
	Target common.Address
	Data   []byte
}

// EpochChange is the verdict of SignalsEpochEnd.
type EpochChange uint8

const (
	// EpochChangeNo means the header does not signal an epoch change.
	EpochChangeNo EpochChange = iota
	// EpochChangeUnsure means more data (e.g. receipts) is needed to decide.
	EpochChangeUnsure
	// EpochChangeYes means the header signals an epoch change; the proof
	// accompanies the verdict.
	EpochChangeYes
)

// ValidatorSet is a specific set of validators with its own rules for
// round-robin assignment, epoch transition and misbehaviour reporting.
//
// Sets are superseded wholesale at an epoch boundary via EpochSet, never
// mutated in place.
type ValidatorSet interface {
	// DefaultCaller returns a contract caller bound to the given block.
	// Sets that require no contract access return a caller that always fails.
	DefaultCaller(blockHash common.Hash) (Call, error)

	// GenerateEngineTransactions produces transactions the engine must
	// include when it seals on top of chainHead. first is true for the
	// first block of an epoch.
	GenerateEngineTransactions(first bool, header *Header, call SystemCall) ([]EngineTransaction, error)

	// OnCloseBlock is called on block sealing with the block author.
	OnCloseBlock(header *Header, author common.Address) error

	// IsEpochEnd returns a finality proof if chainHead ends the current
	// epoch, or nil otherwise. first is true for the genesis of the set.
	IsEpochEnd(first bool, chainHead *Header) []byte

	// SignalsEpochEnd checks whether the given sealed header signals an
	// upcoming epoch change. The proof is non-nil only for EpochChangeYes.
	SignalsEpochEnd(first bool, header *Header) (EpochChange, []byte)

	// EpochSet extracts the validator list to apply from an epoch-change
	// proof, together with an optional hash of the finalizing block.
	EpochSet(first bool, blockNumber uint64, proof []byte) (SimpleList, *common.Hash, error)

	// ContainsWithCaller reports whether address is a validator as of the
	// given block, using the supplied caller for contract-backed lookups.
	ContainsWithCaller(blockHash common.Hash, address common.Address, caller Call) bool

	// GetWithCaller selects the validator for the given round-robin nonce.
	// The set must be non-empty; calling this on an empty set is a
	// programming error and panics.
	GetWithCaller(blockHash common.Hash, nonce uint64, caller Call) common.Address

	// CountWithCaller returns the number of validators as of the given block.
	CountWithCaller(blockHash common.Hash, caller Call) uint64

	// ReportMalicious notifies the set of provably malicious behaviour of a
	// validator at the given block. setBlock is the block at which the
	// current set became active.
	ReportMalicious(validator common.Address, setBlock, block uint64, proof []byte)

	// ReportBenign notifies the set of benign misbehaviour (e.g. a missed
	// turn) of a validator at the given block.
	ReportBenign(validator common.Address, setBlock, block uint64)
}

// Contains reports whether address is a validator, using the set's default caller.
func Contains(set ValidatorSet, blockHash common.Hash, address common.Address) bool {
	caller, _ := set.DefaultCaller(blockHash)
	return set.ContainsWithCaller(blockHash, address, caller)
}

// Get selects the validator for a round-robin nonce, using the set's default caller.
func Get(set ValidatorSet, blockHash common.Hash, nonce uint64) common.Address {
	caller, _ := set.DefaultCaller(blockHash)
	return set.GetWithCaller(blockHash, nonce, caller)
}

// Count returns the set size, using the set's default caller.
func Count(set ValidatorSet, blockHash common.Hash) uint64 {
	caller, _ := set.DefaultCaller(blockHash)
	return set.CountWithCaller(blockHash, caller)
}
