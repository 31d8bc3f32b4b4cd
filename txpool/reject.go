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

import "fmt"

// RejectReason is the typed outcome of a submission. Every rejection is
// detected synchronously during Submit and returned to the caller; nothing is
// silently dropped. Retry with a bumped fee is entirely a caller decision.
type RejectReason uint8

const (
	// NotSet is the nil-value, meaning the outcome has not been decided yet.
	NotSet RejectReason = iota
	// Success means the transaction entered the pool.
	Success
	// AlreadyImported - the pool already holds a transaction with this hash.
	AlreadyImported
	// Stale - the nonce is lower than the sender's current state nonce.
	Stale
	// LimitReached - the pool is at capacity and the candidate does not beat
	// the eviction candidate.
	LimitReached
	// InsufficientGasPrice - the gas price is below the configured threshold.
	InsufficientGasPrice
	// GasPriceLowerThanBaseFee - the max gas price is below the block base fee.
	GasPriceLowerThanBaseFee
	// TooCheapToReplace - a same-slot transaction exists and the candidate's
	// price does not clear the replacement bump.
	TooCheapToReplace
	// InsufficientGas - the gas limit is below the schedule-mandated intrinsic floor.
	InsufficientGas
	// InsufficientBalance - the sender cannot afford gas price * gas limit + value.
	InsufficientBalance
	// GasLimitExceeded - the gas limit exceeds the block gas limit.
	GasLimitExceeded
	// InvalidGasLimit - the gas limit is structurally invalid (cost arithmetic overflows).
	InvalidGasLimit
	// InvalidSignature - sender recovery failed.
	InvalidSignature
	// TooBig - the encoded payload exceeds the size bound.
	TooBig
	// InvalidChainId - the transaction is signed for a different chain.
	InvalidChainId
	// NotAllowed - denied by policy (e.g. an uncertified zero-gas-price sender).
	NotAllowed
	// SenderIsNotEOA - the sender account has code (EIP-3607).
	SenderIsNotEOA
)

func (r RejectReason) String() string {
	switch r {
	case NotSet:
		return "not set"
	case Success:
		return "success"
	case AlreadyImported:
		return "already imported"
	case Stale:
		return "nonce too low"
	case LimitReached:
		return "transaction limit reached"
	case InsufficientGasPrice:
		return "insufficient gas price"
	case GasPriceLowerThanBaseFee:
		return "max gas price is lower than block base fee"
	case TooCheapToReplace:
		return "gas price too low to replace"
	case InsufficientGas:
		return "insufficient gas"
	case InsufficientBalance:
		return "insufficient balance for transaction"
	case GasLimitExceeded:
		return "gas limit exceeds block gas limit"
	case InvalidGasLimit:
		return "invalid gas limit"
	case InvalidSignature:
		return "invalid signature"
	case TooBig:
		return "transaction too big"
	case InvalidChainId:
		return "invalid chain id"
	case NotAllowed:
		return "not allowed"
	case SenderIsNotEOA:
		return "sender is not an externally owned account"
	}
	return fmt.Sprintf("unknown reject reason: %d", uint8(r))
}
