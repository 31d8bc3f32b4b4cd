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
	"github.com/holiman/uint256"
)

// Transactions from the same sender are ordered by nonce; low nonces first.
// If two transactions from the same sender carry the same nonce only one can
// stay in the pool: the one with the higher gas price wins, but the increment
// must be large enough to stop attackers from reshuffling the queue for free.
//
// Across senders, transactions are ranked by a gas-price derived score with a
// tier boost for transactions the node's operator trusts (local) or that are
// being re-included after a reorg (retracted).

// gasPriceBumpShift controls the minimal replacement increment:
// 2 = 25%, 3 = 12.5%, 4 = 6.25%.
const gasPriceBumpShift = 3

// Tier boosts, in bits. Applied only when the transaction currently clears
// the base-fee inclusion boundary.
const (
	localBoost     = 15
	retractedBoost = 10
	regularBoost   = 0
)

// penaltyShift demotes non-local scores by ~12.5% per penalization event.
const penaltyShift = 3

// Choice is the slot verdict for two same-sender transactions.
type Choice uint8

const (
	// InsertNew - different slots, both transactions stay.
	InsertNew Choice = iota
	// ReplaceOld - the new transaction takes over the slot.
	ReplaceOld
	// RejectNew - the new transaction is not sufficiently better.
	RejectNew
)

// ScoringEvent triggers a bulk score update.
type ScoringEvent uint8

const (
	// PenalizeEvent demotes every non-local transaction of the affected
	// sender; used to de-prioritize a sender or peer suspected of abuse.
	PenalizeEvent ScoringEvent = iota
	// BlockBaseFeeChangedEvent recomputes every score against the new block
	// base fee; fired once per block while the fee market is active.
	BlockBaseFeeChangedEvent
)

// ChangeKind discriminates score-update notifications.
type ChangeKind uint8

const (
	// ChangeCulled - entries left the pool as mined/confirmed. No recomputation.
	ChangeCulled ChangeKind = iota
	// ChangeRemovedAt - an entry was removed. No recomputation.
	ChangeRemovedAt
	// ChangeInsertedAt - an entry was inserted at Index.
	ChangeInsertedAt
	// ChangeReplacedAt - the entry at Index was replaced.
	ChangeReplacedAt
	// ChangeEvent - a bulk event (see ScoringEvent).
	ChangeEvent
)

// Change describes what happened to a sender's transaction slice so that the
// aligned score slice can be updated.
type Change struct {
	Kind  ChangeKind
	Index int
	Event ScoringEvent
}

// Scoring decides ordering, replacement and score computation for pooled
// transactions. NonceAndGasPrice is the only shipped strategy; the interface
// keeps the contract open for future ones (e.g. priority-fee-only).
type Scoring interface {
	// Compare orders two transactions of the same sender. Nonce equality
	// means the transactions compete for the same slot.
	Compare(a, b ScoredTransaction) int
	// Choose decides the fate of two same-sender transactions.
	Choose(old, new ScoredTransaction) Choice
	// UpdateScores reacts to a change of the given sender slice, keeping
	// scores[i] aligned with txns[i].
	UpdateScores(txns []*VerifiedTransaction, scores []uint256.Int, change Change)
	// ShouldRejectEarly is a cheap pre-verification check: true means the new
	// transaction has no chance to win the slot and full verification can be
	// skipped. Never called for zero-gas-price or local candidates.
	ShouldRejectEarly(old, new ScoredTransaction) bool
	// ShouldIgnoreSenderLimit reports whether the transaction bypasses the
	// per-sender slot cap.
	ShouldIgnoreSenderLimit(new ScoredTransaction) bool
}

// NonceAndGasPrice is the gas-price based scoring policy.
//
// Penalization does not currently survive re-import: a penalized transaction
// that re-enters the pool starts from a fresh score.
type NonceAndGasPrice struct {
	blockBaseFee *uint256.Int // exists once the fee market is active
}

var _ Scoring = (*NonceAndGasPrice)(nil)

// NewNonceAndGasPrice creates the policy with the given block base fee
// (nil before the fee market activates).
func NewNonceAndGasPrice(blockBaseFee *uint256.Int) *NonceAndGasPrice {
	return &NonceAndGasPrice{blockBaseFee: cloneBaseFee(blockBaseFee)}
}

// SetBlockBaseFee updates the base fee the policy prices against. The caller
// is responsible for firing BlockBaseFeeChangedEvent afterwards.
func (s *NonceAndGasPrice) SetBlockBaseFee(blockBaseFee *uint256.Int) {
	s.blockBaseFee = cloneBaseFee(blockBaseFee)
}

// BlockBaseFee returns the base fee the policy currently prices against.
func (s *NonceAndGasPrice) BlockBaseFee() *uint256.Int { return s.blockBaseFee }

func (s *NonceAndGasPrice) Compare(a, b ScoredTransaction) int {
	an, bn := a.Nonce(), b.Nonce()
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	}
	return 0
}

func (s *NonceAndGasPrice) Choose(old, new ScoredTransaction) Choice {
	if old.Nonce() != new.Nonce() {
		return InsertNew
	}
	oldGp := old.EffectiveGasPrice(s.blockBaseFee)
	newGp := new.EffectiveGasPrice(s.blockBaseFee)
	if bumpGasPrice(oldGp).Gt(newGp) {
		return RejectNew
	}
	return ReplaceOld
}

// ShouldRejectEarly rejects outright when the slot is held by a local
// transaction, regardless of the candidate's own priority; a local occupant
// is only ever displaced through full verification. Otherwise the candidate
// is rejected when it cannot outprice the occupant.
func (s *NonceAndGasPrice) ShouldRejectEarly(old, new ScoredTransaction) bool {
	if old.Priority().IsLocal() {
		return true
	}
	return old.EffectiveGasPrice(s.blockBaseFee).Gt(new.EffectiveGasPrice(s.blockBaseFee))
}

func (s *NonceAndGasPrice) ShouldIgnoreSenderLimit(new ScoredTransaction) bool {
	return new.Priority().IsLocal()
}

func (s *NonceAndGasPrice) UpdateScores(txns []*VerifiedTransaction, scores []uint256.Int, change Change) {
	switch change.Kind {
	case ChangeCulled, ChangeRemovedAt:
		// entries are leaving; survivors keep their ordering
	case ChangeInsertedAt, ChangeReplacedAt:
		s.computeScore(txns[change.Index], &scores[change.Index])
	case ChangeEvent:
		switch change.Event {
		case PenalizeEvent:
			for i := range txns {
				if txns[i].Priority().IsLocal() {
					continue
				}
				scores[i].Rsh(&scores[i], penaltyShift)
			}
		case BlockBaseFeeChangedEvent:
			for i := range txns {
				s.computeScore(txns[i], &scores[i])
			}
		}
	}
}

// computeScore sets score to the effective gas price, boosted by the priority
// tier only if the transaction currently clears the base-fee inclusion
// boundary; a non-includable transaction never outranks includable ones.
func (s *NonceAndGasPrice) computeScore(txn *VerifiedTransaction, score *uint256.Int) {
	score.Set(txn.EffectiveGasPrice(s.blockBaseFee))
	if s.blockBaseFee != nil && score.Lt(s.blockBaseFee) {
		return
	}
	var boost uint
	switch txn.Priority() {
	case PriorityLocal:
		boost = localBoost
	case PriorityRetracted:
		boost = retractedBoost
	default:
		boost = regularBoost
	}
	score.Lsh(score, boost)
}

// bumpGasPrice calculates the minimal price required to replace, saturating
// on overflow: old + old>>3 (12.5%).
func bumpGasPrice(oldGp *uint256.Int) *uint256.Int {
	bumped := new(uint256.Int).Rsh(oldGp, gasPriceBumpShift)
	if _, overflow := bumped.AddOverflow(bumped, oldGp); overflow {
		return new(uint256.Int).SetAllOne()
	}
	return bumped
}

func cloneBaseFee(blockBaseFee *uint256.Int) *uint256.Int {
	if blockBaseFee == nil {
		return nil
	}
	return new(uint256.Int).Set(blockBaseFee)
}
