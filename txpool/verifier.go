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

	"github.com/aspenchain/aspen/common"
	"github.com/aspenchain/aspen/crypto"
)

// GasSchedule carries the gas-floor parameters of the active fork.
type GasSchedule struct {
	TxGas            uint64 // base cost of a transaction
	TxCreateGas      uint64 // base cost of a contract-creating transaction
	TxDataZeroGas    uint64 // per zero byte of data
	TxDataNonZeroGas uint64 // per non-zero byte of data
}

// DefaultGasSchedule matches the Istanbul cost table.
var DefaultGasSchedule = GasSchedule{
	TxGas:            21_000,
	TxCreateGas:      53_000,
	TxDataZeroGas:    4,
	TxDataNonZeroGas: 16,
}

// IntrinsicGas returns the schedule-mandated gas floor for a transaction
// with the given data shape.
func (g GasSchedule) IntrinsicGas(dataLen, dataNonZeroLen int, creation bool) uint64 {
	gas := g.TxGas
	if creation {
		gas = g.TxCreateGas
	}
	gas += uint64(dataLen-dataNonZeroLen) * g.TxDataZeroGas
	gas += uint64(dataNonZeroLen) * g.TxDataNonZeroGas
	return gas
}

// ChainState is the blockchain-state reader the pool verifies against.
// Implementations live outside this package (client/execution layer); tests
// use an in-memory fake.
type ChainState interface {
	// CurrentNonce returns the account's nonce at the current head.
	CurrentNonce(addr common.Address) uint64
	// Balance returns the account's balance at the current head.
	Balance(addr common.Address) *uint256.Int
	// GasSchedule returns the gas cost table active at the given block.
	GasSchedule(blockNumber uint64) GasSchedule
	// BaseFee returns the block base fee, or nil before the fee market.
	BaseFee(blockNumber uint64) *uint256.Int
	// BlockGasLimit returns the gas limit of the current head.
	BlockGasLimit() uint64
	// ChainID returns the chain identifier transactions must be signed for.
	ChainID() uint64
	// IsEOA reports whether the address has no code (EIP-3607).
	IsEOA(addr common.Address) bool
}

// SenderRecoverer is the signature primitive the pool consumes. Recovery is
// CPU-bound and runs before the pool lock is taken.
type SenderRecoverer interface {
	RecoverSender(txn *TxnSlot) (common.Address, error)
}

// CryptoRecoverer recovers senders with the secp256k1-backed crypto package.
type CryptoRecoverer struct{}

func (CryptoRecoverer) RecoverSender(txn *TxnSlot) (common.Address, error) {
	return crypto.RecoverSender(txn.SigHash, txn.Signature[:])
}

// Verifier runs the full admission pipeline on candidate slots: structural
// checks, gas floor, affordability, then sender recovery. Checks are ordered
// cheapest first.
type Verifier struct {
	cfg       Config
	state     ChainState
	recoverer SenderRecoverer
	checker   *ServiceTransactionChecker // optional zero-gas-price whitelist
	caller    ContractCaller             // backing for the checker, may be nil
}

// NewVerifier creates a Verifier over the given collaborators. checker and
// caller may be nil when zero-gas-price service transactions are not
// supported.
func NewVerifier(cfg Config, state ChainState, recoverer SenderRecoverer, checker *ServiceTransactionChecker, caller ContractCaller) *Verifier {
	return &Verifier{cfg: cfg.withDefaults(), state: state, recoverer: recoverer, checker: checker, caller: caller}
}

// Verify validates the slot and wraps it into a VerifiedTransaction at the
// given priority tier. The returned reason is Success on admission-worthiness;
// anything else names the first failed check.
func (v *Verifier) Verify(txn *TxnSlot, priority Priority, blockNumber uint64) (*VerifiedTransaction, RejectReason) {
	if uint64(txn.Size) > v.cfg.MaxTxnSize.Bytes() {
		return nil, TooBig
	}
	if txn.ChainID != 0 && txn.ChainID != v.state.ChainID() {
		return nil, InvalidChainId
	}
	schedule := v.state.GasSchedule(blockNumber)
	if txn.Gas < schedule.IntrinsicGas(txn.DataLen, txn.DataNonZeroLen, txn.Creation) {
		return nil, InsufficientGas
	}
	if txn.Gas > v.state.BlockGasLimit() {
		return nil, GasLimitExceeded
	}
	cost, overflow := txnCost(txn)
	if overflow {
		return nil, InvalidGasLimit
	}
	if !priority.IsLocal() {
		if reason := v.checkGasPrice(txn); reason != Success {
			return nil, reason
		}
		if baseFee := v.state.BaseFee(blockNumber); baseFee != nil &&
			!txn.IsZeroGasPrice() && txn.FeeCap.Lt(baseFee) {
			return nil, GasPriceLowerThanBaseFee
		}
	}

	// expensive part: sender recovery
	sender, err := v.recoverer.RecoverSender(txn)
	if err != nil {
		return nil, InvalidSignature
	}
	if txn.Sender != nil && *txn.Sender != sender {
		return nil, InvalidSignature
	}
	if !v.state.IsEOA(sender) {
		return nil, SenderIsNotEOA
	}
	if txn.Nonce < v.state.CurrentNonce(sender) {
		return nil, Stale
	}
	if v.state.Balance(sender).Lt(cost) {
		return nil, InsufficientBalance
	}
	if txn.IsZeroGasPrice() && !priority.IsLocal() {
		if !v.isCertified(sender) {
			return nil, NotAllowed
		}
	}

	if len(txn.Rlp) > 0 {
		txn.IDHash = crypto.Keccak256Hash(txn.Rlp)
	}
	return &VerifiedTransaction{
		Txn:      txn,
		hash:     txn.IDHash,
		sender:   sender,
		priority: priority,
	}, Success
}

// checkGasPrice enforces the admission price floor for non-local candidates.
// Zero-gas-price transactions pass here and are checked against the service
// transaction whitelist once the sender is known.
func (v *Verifier) checkGasPrice(txn *TxnSlot) RejectReason {
	if txn.IsZeroGasPrice() {
		return Success
	}
	if txn.FeeCap.Lt(&v.cfg.MinGasPrice) {
		return InsufficientGasPrice
	}
	return Success
}

func (v *Verifier) isCertified(sender common.Address) bool {
	if v.checker == nil || v.caller == nil {
		return false
	}
	certified, err := v.checker.CheckAddress(v.caller, sender)
	return err == nil && certified
}

// IsZeroGasPrice reports whether the transaction offers no fee at all.
func (txn *TxnSlot) IsZeroGasPrice() bool {
	return txn.FeeCap.IsZero() && txn.Tip.IsZero()
}
