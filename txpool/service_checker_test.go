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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspenchain/aspen/common"
)

// fakeCaller serves the certifier contract from a map and counts calls.
type fakeCaller struct {
	registry  bool
	certified map[common.Address]bool
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{registry: true, certified: map[common.Address]bool{}}
}

func (f *fakeCaller) RegistryAddress(string) (common.Address, bool) {
	return addr(0xcc), f.registry
}

func (f *fakeCaller) CallContract(_ common.Address, data []byte) ([]byte, error) {
	f.calls++
	var sender common.Address
	sender.SetBytes(data[4+12:])
	out := make([]byte, 32)
	if f.certified[sender] {
		out[31] = 1
	}
	return out, nil
}

func TestCheckAddressReadThrough(t *testing.T) {
	caller := newFakeCaller()
	caller.certified[addr(1)] = true
	checker := NewServiceTransactionChecker()

	allowed, err := checker.CheckAddress(caller, addr(1))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, caller.calls)

	// second lookup is served from the cache
	allowed, err = checker.CheckAddress(caller, addr(1))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, caller.calls)

	allowed, err = checker.CheckAddress(caller, addr(2))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, caller.calls)
}

func TestCheckAddressNoCertifier(t *testing.T) {
	caller := newFakeCaller()
	caller.registry = false

	checker := NewServiceTransactionChecker()
	_, err := checker.CheckAddress(caller, addr(1))
	assert.ErrorIs(t, err, errNoCertifier)
}

func TestRefreshCache(t *testing.T) {
	caller := newFakeCaller()
	caller.certified[addr(1)] = true
	checker := NewServiceTransactionChecker()

	allowed, err := checker.CheckAddress(caller, addr(1))
	require.NoError(t, err)
	require.True(t, allowed)

	// the verdict flips on chain; the stale cache still says yes
	caller.certified[addr(1)] = false
	allowed, err = checker.CheckAddress(caller, addr(1))
	require.NoError(t, err)
	assert.True(t, allowed)

	refreshed, err := checker.RefreshCache(caller)
	require.NoError(t, err)
	require.True(t, refreshed)

	allowed, err = checker.CheckAddress(caller, addr(1))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRefreshCacheWithoutCertifierClears(t *testing.T) {
	caller := newFakeCaller()
	caller.certified[addr(1)] = true
	checker := NewServiceTransactionChecker()

	_, err := checker.CheckAddress(caller, addr(1))
	require.NoError(t, err)

	caller.registry = false
	refreshed, err := checker.RefreshCache(caller)
	require.NoError(t, err)
	assert.False(t, refreshed)

	// cache was dropped, the next lookup fails on the missing certifier
	_, err = checker.CheckAddress(caller, addr(1))
	assert.ErrorIs(t, err, errNoCertifier)
}

func TestCheckIgnoresPricedTransactions(t *testing.T) {
	caller := newFakeCaller()
	checker := NewServiceTransactionChecker()

	txn := &VerifiedTransaction{Txn: newSlot(addr(1), 0, 10)}
	allowed, err := checker.Check(caller, txn)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, caller.calls)
}
