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

package txpool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/aspenchain/aspen/common"
)

// Priority of a pooled transaction. Priorities form an ordered tier:
// Local > Retracted > Regular. Ties within a tier are broken by score.
type Priority uint8

const (
	// PriorityRegular is a transaction received over the network, no boost.
	PriorityRegular Priority = iota
	// PriorityRetracted is a transaction re-queued because the block that
	// contained it was reorganised out.
	PriorityRetracted
	// PriorityLocal is a transaction submitted by a trusted/local source.
	PriorityLocal
)

// IsLocal reports whether the priority tier is Local.
func (p Priority) IsLocal() bool { return p == PriorityLocal }

func (p Priority) String() string {
	switch p {
	case PriorityRegular:
		return "regular"
	case PriorityRetracted:
		return "retracted"
	case PriorityLocal:
		return "local"
	}
	return fmt.Sprintf("unknown:%d", uint8(p))
}

// TxnSlot contains information extracted from an already-decoded transaction,
// enough to verify and manage it inside the pool. Wire decoding happens
// upstream; the pool operates on in-memory slots only.
type TxnSlot struct {
	Nonce    uint64      // Nonce of the transaction
	Tip      uint256.Int // Maximum priority fee per gas (== gas price for legacy transactions)
	FeeCap   uint256.Int // Maximum fee per gas the transaction burns and gives to the block producer
	Gas      uint64      // Gas limit of the transaction
	Value    uint256.Int // Value transferred by the transaction
	Creation bool        // Set to true if "To" field of the transaction is not set
	Legacy   bool        // Pre-fee-market transaction; effective gas price is the flat FeeCap
	ChainID  uint64      // Chain id the transaction is signed for; 0 for pre-EIP-155 legacy transactions

	DataLen        int // Length of transaction's data (for intrinsic gas)
	DataNonZeroLen int // Number of non-zero bytes in the data

	Size uint32 // Size of the encoded payload in bytes

	Rlp       []byte          // Encoded payload; content digest source
	IDHash    common.Hash     // Content digest; derived from Rlp at verification when Rlp is present
	SigHash   common.Hash     // Digest the signature is computed over
	Signature [65]byte        // R || S || V (V in {0,1})
	Sender    *common.Address // Sender as recovered by an upstream decoder, if known; used only for cheap pre-checks
}

// ScoredTransaction is the ordering contract every pooled transaction
// satisfies. NonceAndGasPrice is the shipped scoring strategy; the contract
// is an interface so future strategies can plug in.
type ScoredTransaction interface {
	// Priority gets the transaction priority tier.
	Priority() Priority
	// EffectiveGasPrice gets the price paid per gas unit under the given
	// block base fee (nil before the fee market is active).
	EffectiveGasPrice(blockBaseFee *uint256.Int) *uint256.Int
	// EffectivePriorityFee gets the portion of the effective gas price above
	// the base fee, i.e. the block producer's actual take. Zero floor.
	EffectivePriorityFee(blockBaseFee *uint256.Int) *uint256.Int
	// Nonce gets the transaction nonce.
	Nonce() uint64
	// Cost gets the maximal transaction cost: gas price * gas limit + value.
	Cost() *uint256.Int
}

// VerifiedTransaction is an admitted, signature-checked transaction. Hash and
// sender are derived once at verification time and never recomputed. The
// wrapper is immutable except for priority reclassification on retraction.
type VerifiedTransaction struct {
	Txn *TxnSlot

	hash        common.Hash
	sender      common.Address
	priority    Priority
	insertionID uint64
}

var _ ScoredTransaction = (*VerifiedTransaction)(nil)

// Hash returns the cached content digest.
func (t *VerifiedTransaction) Hash() common.Hash { return t.hash }

// Sender returns the cached recovered signer.
func (t *VerifiedTransaction) Sender() common.Address { return t.sender }

// Priority returns the transaction priority tier.
func (t *VerifiedTransaction) Priority() Priority { return t.priority }

// Nonce returns the transaction nonce.
func (t *VerifiedTransaction) Nonce() uint64 { return t.Txn.Nonce }

// InsertionID returns the monotonic arrival counter used for tie-breaking.
func (t *VerifiedTransaction) InsertionID() uint64 { return t.insertionID }

// EffectiveGasPrice returns the price actually paid per unit of gas: the flat
// gas price for legacy transactions, min(feeCap, baseFee+tip) for fee-market
// transactions when a base fee is known, and the fee cap otherwise.
func (t *VerifiedTransaction) EffectiveGasPrice(blockBaseFee *uint256.Int) *uint256.Int {
	return effectiveGasPrice(t.Txn, blockBaseFee)
}

// EffectivePriorityFee returns the portion of the effective gas price above
// the base fee. With no base fee the whole effective price is the producer's.
func (t *VerifiedTransaction) EffectivePriorityFee(blockBaseFee *uint256.Int) *uint256.Int {
	price := effectiveGasPrice(t.Txn, blockBaseFee)
	if blockBaseFee == nil {
		return price
	}
	if price.Lt(blockBaseFee) {
		return uint256.NewInt(0)
	}
	return price.Sub(price, blockBaseFee)
}

// Cost returns gas price * gas limit + value. Overflow is rejected at
// verification time (InvalidGasLimit), so an admitted transaction's cost
// always fits; the defensive saturation here is unreachable for pool residents.
func (t *VerifiedTransaction) Cost() *uint256.Int {
	cost, overflow := txnCost(t.Txn)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return cost
}

func effectiveGasPrice(txn *TxnSlot, blockBaseFee *uint256.Int) *uint256.Int {
	feeCap := new(uint256.Int).Set(&txn.FeeCap)
	if txn.Legacy || blockBaseFee == nil {
		return feeCap
	}
	full := new(uint256.Int).Add(blockBaseFee, &txn.Tip)
	if full.Lt(feeCap) {
		return full
	}
	return feeCap
}

// txnCost computes feeCap * gas + value with overflow detection.
func txnCost(txn *TxnSlot) (*uint256.Int, bool) {
	cost := new(uint256.Int).SetUint64(txn.Gas)
	_, overflow := cost.MulOverflow(cost, &txn.FeeCap)
	if overflow {
		return nil, true
	}
	_, overflow = cost.AddOverflow(cost, &txn.Value)
	if overflow {
		return nil, true
	}
	return cost, false
}
