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

	"github.com/aspenchain/aspen/common"
)

func TestIntrinsicGas(t *testing.T) {
	g := DefaultGasSchedule
	assert.Equal(t, uint64(21_000), g.IntrinsicGas(0, 0, false))
	assert.Equal(t, uint64(53_000), g.IntrinsicGas(0, 0, true))
	// 10 zero bytes and 5 non-zero bytes
	assert.Equal(t, uint64(21_000+10*4+5*16), g.IntrinsicGas(15, 5, false))
}

func TestVerifyTaxonomy(t *testing.T) {
	state := newFakeState()
	cfg := Config{MinGasPrice: *uint256.NewInt(10)}
	v := NewVerifier(cfg, state, sigRecoverer{}, nil, nil)

	sender := addr(1)
	poor := addr(2)
	state.balances[poor] = uint256.NewInt(1)
	contract := addr(3)
	state.contracts[contract] = true
	used := addr(4)
	state.nonces[used] = 5

	tests := []struct {
		name   string
		slot   func() *TxnSlot
		local  bool
		reason RejectReason
	}{
		{"ok", func() *TxnSlot { return newSlot(sender, 0, 10) }, false, Success},
		{"too big", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.Size = uint32(DefaultConfig.MaxTxnSize.Bytes()) + 1
			return s
		}, false, TooBig},
		{"wrong chain", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.ChainID = 5
			return s
		}, false, InvalidChainId},
		{"pre-eip155 chain id passes", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.ChainID = 0
			return s
		}, false, Success},
		{"gas under intrinsic floor", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.Gas = 20_999
			return s
		}, false, InsufficientGas},
		{"gas over block limit", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.Gas = state.gasLimit + 1
			return s
		}, false, GasLimitExceeded},
		{"cost overflow", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.FeeCap.SetAllOne()
			return s
		}, false, InvalidGasLimit},
		{"under price floor", func() *TxnSlot { return newSlot(sender, 0, 9) }, false, InsufficientGasPrice},
		{"local under price floor", func() *TxnSlot { return newSlot(sender, 0, 9) }, true, Success},
		{"unsigned", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			s.Signature = [65]byte{}
			return s
		}, false, InvalidSignature},
		{"declared sender mismatch", func() *TxnSlot {
			s := newSlot(sender, 0, 10)
			other := addr(9)
			s.Sender = &other
			return s
		}, false, InvalidSignature},
		{"sender has code", func() *TxnSlot { return newSlot(contract, 0, 10) }, false, SenderIsNotEOA},
		{"stale nonce", func() *TxnSlot { return newSlot(used, 4, 10) }, false, Stale},
		{"cannot afford", func() *TxnSlot {
			s := newSlot(poor, 0, 10)
			s.Value.SetUint64(1_000_000)
			return s
		}, false, InsufficientBalance},
		{"zero price uncertified", func() *TxnSlot { return newSlot(sender, 0, 0) }, false, NotAllowed},
		{"zero price local", func() *TxnSlot { return newSlot(sender, 0, 0) }, true, Success},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priority := PriorityRegular
			if tt.local {
				priority = PriorityLocal
			}
			verified, reason := v.Verify(tt.slot(), priority, 0)
			assert.Equal(t, tt.reason, reason)
			if tt.reason == Success {
				require.NotNil(t, verified)
				assert.Equal(t, priority, verified.Priority())
			} else {
				assert.Nil(t, verified)
			}
		})
	}
}

func TestVerifyRejectsFeeBelowBaseFee(t *testing.T) {
	state := newFakeState()
	state.baseFee = uint256.NewInt(100)
	v := NewVerifier(Config{}, state, sigRecoverer{}, nil, nil)

	_, reason := v.Verify(newSlot(addr(1), 0, 50), PriorityRegular, 0)
	assert.Equal(t, GasPriceLowerThanBaseFee, reason)

	_, reason = v.Verify(newSlot(addr(1), 0, 100), PriorityRegular, 0)
	assert.Equal(t, Success, reason)

	// local senders may queue below the base fee
	_, reason = v.Verify(newSlot(addr(1), 0, 50), PriorityLocal, 0)
	assert.Equal(t, Success, reason)
}

func TestVerifyDerivesIDHashFromPayload(t *testing.T) {
	state := newFakeState()
	v := NewVerifier(Config{}, state, sigRecoverer{}, nil, nil)

	slot := newSlot(addr(1), 0, 10)
	slot.IDHash = common.Hash{}
	slot.Rlp = []byte{0x01, 0x02, 0x03}

	verified, reason := v.Verify(slot, PriorityRegular, 0)
	require.Equal(t, Success, reason)
	assert.False(t, verified.Hash().IsZero())
	assert.Equal(t, slot.IDHash, verified.Hash())
}

func TestVerifyCertifiedZeroPrice(t *testing.T) {
	state := newFakeState()
	caller := newFakeCaller()
	caller.certified[addr(1)] = true
	checker := NewServiceTransactionChecker()
	v := NewVerifier(Config{}, state, sigRecoverer{}, checker, caller)

	_, reason := v.Verify(newSlot(addr(1), 0, 0), PriorityRegular, 0)
	assert.Equal(t, Success, reason)

	_, reason = v.Verify(newSlot(addr(2), 0, 0), PriorityRegular, 0)
	assert.Equal(t, NotAllowed, reason)
}
