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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredTxn(nonce, gasPrice uint64, priority Priority) *VerifiedTransaction {
	slot := &TxnSlot{Nonce: nonce, Legacy: true}
	slot.FeeCap.SetUint64(gasPrice)
	slot.Tip.SetUint64(gasPrice)
	return &VerifiedTransaction{Txn: slot, priority: priority}
}

func TestCompareOrdersByNonce(t *testing.T) {
	s := NewNonceAndGasPrice(nil)
	assert.Equal(t, -1, s.Compare(scoredTxn(1, 100, PriorityRegular), scoredTxn(2, 1, PriorityRegular)))
	assert.Equal(t, 1, s.Compare(scoredTxn(3, 1, PriorityRegular), scoredTxn(2, 100, PriorityRegular)))
	assert.Equal(t, 0, s.Compare(scoredTxn(2, 1, PriorityRegular), scoredTxn(2, 100, PriorityRegular)))
}

func TestChooseRequiresReplacementBump(t *testing.T) {
	s := NewNonceAndGasPrice(nil)

	// different slots never compete
	assert.Equal(t, InsertNew, s.Choose(scoredTxn(1, 1000, PriorityRegular), scoredTxn(2, 1, PriorityRegular)))

	// old price 1000 requires at least 1125
	old := scoredTxn(5, 1000, PriorityRegular)
	assert.Equal(t, RejectNew, s.Choose(old, scoredTxn(5, 1124, PriorityRegular)))
	assert.Equal(t, ReplaceOld, s.Choose(old, scoredTxn(5, 1125, PriorityRegular)))
}

func TestChooseScenarioSameNonce(t *testing.T) {
	s := NewNonceAndGasPrice(nil)
	old := scoredTxn(5, 100, PriorityRegular)
	// 108 < 100 + 100>>3 = 112
	assert.Equal(t, RejectNew, s.Choose(old, scoredTxn(5, 108, PriorityRegular)))
	assert.Equal(t, ReplaceOld, s.Choose(old, scoredTxn(5, 115, PriorityRegular)))
}

func TestBumpGasPriceSaturates(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	assert.Equal(t, max, bumpGasPrice(max))
	assert.Equal(t, uint256.NewInt(1125), bumpGasPrice(uint256.NewInt(1000)))
}

func TestTierBoosts(t *testing.T) {
	s := NewNonceAndGasPrice(nil)
	txns := []*VerifiedTransaction{
		scoredTxn(0, 1, PriorityLocal),
		scoredTxn(0, 1, PriorityRetracted),
		scoredTxn(0, 1, PriorityRegular),
	}
	scores := make([]uint256.Int, len(txns))
	for i := range txns {
		s.UpdateScores(txns, scores, Change{Kind: ChangeInsertedAt, Index: i})
	}
	assert.Equal(t, uint64(1<<15), scores[0].Uint64())
	assert.Equal(t, uint64(1<<10), scores[1].Uint64())
	assert.Equal(t, uint64(1), scores[2].Uint64())
}

func TestBoostGatedOnBaseFeeBoundary(t *testing.T) {
	s := NewNonceAndGasPrice(uint256.NewInt(100))
	txns := []*VerifiedTransaction{
		scoredTxn(0, 50, PriorityLocal),   // below the boundary, no boost
		scoredTxn(0, 100, PriorityLocal),  // exactly at the boundary, boosted
		scoredTxn(0, 200, PriorityRetracted),
	}
	scores := make([]uint256.Int, len(txns))
	for i := range txns {
		s.UpdateScores(txns, scores, Change{Kind: ChangeInsertedAt, Index: i})
	}
	assert.Equal(t, uint64(50), scores[0].Uint64())
	assert.Equal(t, uint64(100<<15), scores[1].Uint64())
	assert.Equal(t, uint64(200<<10), scores[2].Uint64())
}

func TestPenalizeSparesLocals(t *testing.T) {
	s := NewNonceAndGasPrice(nil)
	txns := []*VerifiedTransaction{
		scoredTxn(0, 1, PriorityLocal),
		scoredTxn(0, 1024, PriorityRegular),
		scoredTxn(0, 1024, PriorityRetracted),
	}
	scores := make([]uint256.Int, len(txns))
	for i := range txns {
		s.UpdateScores(txns, scores, Change{Kind: ChangeInsertedAt, Index: i})
	}
	require.Equal(t, uint64(1<<15), scores[0].Uint64())

	s.UpdateScores(txns, scores, Change{Kind: ChangeEvent, Event: PenalizeEvent})
	assert.Equal(t, uint64(1<<15), scores[0].Uint64(), "local score must not be demoted")
	assert.Equal(t, uint64(128), scores[1].Uint64())
	assert.Equal(t, uint64(1024<<10>>3), scores[2].Uint64())
}

func TestRescoreIdempotent(t *testing.T) {
	s := NewNonceAndGasPrice(uint256.NewInt(7))
	txns := []*VerifiedTransaction{
		scoredTxn(0, 5, PriorityRegular),
		scoredTxn(1, 9, PriorityLocal),
		scoredTxn(2, 7, PriorityRetracted),
	}
	scores := make([]uint256.Int, len(txns))
	s.UpdateScores(txns, scores, Change{Kind: ChangeEvent, Event: BlockBaseFeeChangedEvent})
	first := make([]uint256.Int, len(scores))
	copy(first, scores)

	s.UpdateScores(txns, scores, Change{Kind: ChangeEvent, Event: BlockBaseFeeChangedEvent})
	assert.Equal(t, first, scores)
}

func TestRescoreOnBaseFeeChange(t *testing.T) {
	s := NewNonceAndGasPrice(nil)
	txns := []*VerifiedTransaction{scoredTxn(0, 100, PriorityRetracted)}
	scores := make([]uint256.Int, 1)
	s.UpdateScores(txns, scores, Change{Kind: ChangeInsertedAt, Index: 0})
	require.Equal(t, uint64(100<<10), scores[0].Uint64())

	// boundary rises above the price, the boost goes away
	s.SetBlockBaseFee(uint256.NewInt(150))
	s.UpdateScores(txns, scores, Change{Kind: ChangeEvent, Event: BlockBaseFeeChangedEvent})
	assert.Equal(t, uint64(100), scores[0].Uint64())
}

func TestShouldRejectEarly(t *testing.T) {
	s := NewNonceAndGasPrice(nil)

	// a local occupant rejects any fast-path candidate, even a richer one
	assert.True(t, s.ShouldRejectEarly(scoredTxn(0, 1, PriorityLocal), scoredTxn(0, 1000, PriorityRegular)))

	assert.True(t, s.ShouldRejectEarly(scoredTxn(0, 100, PriorityRegular), scoredTxn(0, 99, PriorityRegular)))
	assert.False(t, s.ShouldRejectEarly(scoredTxn(0, 100, PriorityRegular), scoredTxn(0, 100, PriorityRegular)))
	assert.False(t, s.ShouldRejectEarly(scoredTxn(0, 100, PriorityRegular), scoredTxn(0, 200, PriorityRegular)))
}

func TestShouldIgnoreSenderLimit(t *testing.T) {
	s := NewNonceAndGasPrice(nil)
	assert.True(t, s.ShouldIgnoreSenderLimit(scoredTxn(0, 1, PriorityLocal)))
	assert.False(t, s.ShouldIgnoreSenderLimit(scoredTxn(0, 1, PriorityRetracted)))
	assert.False(t, s.ShouldIgnoreSenderLimit(scoredTxn(0, 1, PriorityRegular)))
}

func TestEffectiveGasPrice(t *testing.T) {
	dynamic := &TxnSlot{}
	dynamic.FeeCap.SetUint64(100)
	dynamic.Tip.SetUint64(10)
	txn := &VerifiedTransaction{Txn: dynamic}

	// no fee market: the cap
	assert.Equal(t, uint64(100), txn.EffectiveGasPrice(nil).Uint64())
	// base fee 50: min(cap, base+tip) = 60
	assert.Equal(t, uint64(60), txn.EffectiveGasPrice(uint256.NewInt(50)).Uint64())
	// base fee 95: capped at 100
	assert.Equal(t, uint64(100), txn.EffectiveGasPrice(uint256.NewInt(95)).Uint64())

	// priority fee is the producer's take, floored at zero
	assert.Equal(t, uint64(10), txn.EffectivePriorityFee(uint256.NewInt(50)).Uint64())
	assert.Equal(t, uint64(5), txn.EffectivePriorityFee(uint256.NewInt(95)).Uint64())
	assert.Equal(t, uint64(0), txn.EffectivePriorityFee(uint256.NewInt(200)).Uint64())

	legacy := scoredTxn(0, 77, PriorityRegular)
	assert.Equal(t, uint64(77), legacy.EffectiveGasPrice(uint256.NewInt(50)).Uint64())
}
