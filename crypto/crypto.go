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

package crypto

import (
	"errors"
	"fmt"
	"hash"

	"github.com/erigontech/secp256k1"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/aspenchain/aspen/common"
)

// SignatureLength is the length of a recoverable ECDSA signature: 64 bytes
// of R || S plus 1 byte of recovery id.
const SignatureLength = 65

var (
	ErrInvalidSignatureLen = errors.New("invalid signature length")
	ErrInvalidRecoveryID   = errors.New("invalid signature recovery id")
	ErrInvalidSignatureS   = errors.New("signature S value is in the upper half of the curve order")
)

// secp256k1N is the order of the secp256k1 curve. Signatures with
// S > N/2 are rejected (EIP-2, signature malleability).
var (
	secp256k1N     = uint256.MustFromHex("0xfffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	secp256k1HalfN = new(uint256.Int).Rsh(secp256k1N, 1)
)

// KeccakState wraps sha3.state. In addition to the usual hash methods, it also supports
// Read to get a variable amount of data from the hash state. Read is faster than Sum
// because it doesn't copy the internal state, but also modifies the internal state.
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// NewKeccakState creates a new KeccakState.
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	b := make([]byte, 32)
	d := NewKeccakState()
	for _, datum := range data {
		d.Write(datum)
	}
	d.Read(b) //nolint:errcheck
	return b
}

// Keccak256Hash calculates and returns the Keccak256 hash of the input data,
// converting it to an internal Hash data structure.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	d := NewKeccakState()
	for _, datum := range data {
		d.Write(datum)
	}
	d.Read(h[:]) //nolint:errcheck
	return h
}

// ValidateSignatureValues verifies whether the signature values are valid with
// the given chain rules. The v value is assumed to be either 0 or 1.
func ValidateSignatureValues(v byte, r, s *uint256.Int) bool {
	if r.IsZero() || s.IsZero() {
		return false
	}
	// reject upper range of s values (ECDSA malleability)
	if s.Gt(secp256k1HalfN) {
		return false
	}
	return r.Lt(secp256k1N) && s.Lt(secp256k1N) && (v == 0 || v == 1)
}

// RecoverSender returns the address that produced sig over sigHash.
// sig must be in the 65-byte [R || S || V] format with V being 0 or 1.
func RecoverSender(sigHash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: got %d, want %d", ErrInvalidSignatureLen, len(sig), SignatureLength)
	}
	v := sig[64]
	if v >= 4 {
		return common.Address{}, ErrInvalidRecoveryID
	}
	r := new(uint256.Int).SetBytes(sig[:32])
	s := new(uint256.Int).SetBytes(sig[32:64])
	if !ValidateSignatureValues(v, r, s) {
		return common.Address{}, ErrInvalidSignatureS
	}
	pub, err := secp256k1.RecoverPubkey(sigHash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	if len(pub) == 0 || pub[0] != 4 {
		return common.Address{}, errors.New("invalid public key recovered")
	}
	return common.BytesToAddress(Keccak256(pub[1:])[12:]), nil
}

// Sign calculates a recoverable ECDSA signature over sigHash.
// The produced signature is in the 65-byte [R || S || V] format.
func Sign(sigHash common.Hash, seckey []byte) ([]byte, error) {
	return secp256k1.Sign(sigHash[:], seckey)
}

// PubkeyToAddress derives the account address from an uncompressed
// 65-byte secp256k1 public key.
func PubkeyToAddress(pub []byte) (common.Address, error) {
	if len(pub) != 65 || pub[0] != 4 {
		return common.Address{}, errors.New("invalid uncompressed public key")
	}
	return common.BytesToAddress(Keccak256(pub[1:])[12:]), nil
}
