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
	"errors"
	"sync"

	"github.com/aspenchain/aspen/common"
	"github.com/aspenchain/aspen/crypto"
)

// ContractCaller executes read-only contract calls against the current head.
// It is a narrow view of the node's registry/EVM surface; the pool never
// interprets bytecode itself.
type ContractCaller interface {
	// CallContract executes data against the contract at addr.
	CallContract(addr common.Address, data []byte) ([]byte, error)
	// RegistryAddress resolves a registry name to a contract address.
	RegistryAddress(name string) (common.Address, bool)
}

// serviceTransactionRegistryName is the registry key of the certifier contract.
const serviceTransactionRegistryName = "service_transaction_checker"

// certifiedSelector is the 4-byte selector of `certified(address)`.
var certifiedSelector = crypto.Keccak256([]byte("certified(address)"))[:4]

var errNoCertifier = errors.New("certifier contract is not configured")

// ServiceTransactionChecker decides whether a sender is whitelisted to send
// zero-gas-price (service) transactions.
//
// Lookups go through a read-through cache: optimistic shared-lock read,
// exclusive lock only on miss. A stale verdict is tolerated until the next
// explicit RefreshCache; the staleness window is the caller's refresh cadence.
type ServiceTransactionChecker struct {
	mu        sync.RWMutex
	certified map[common.Address]bool
}

// NewServiceTransactionChecker creates a checker with an empty cache.
func NewServiceTransactionChecker() *ServiceTransactionChecker {
	return &ServiceTransactionChecker{certified: map[common.Address]bool{}}
}

// Check reports whether the transaction may be admitted with a zero gas
// price. Non-zero-priced transactions are never service transactions.
func (c *ServiceTransactionChecker) Check(caller ContractCaller, txn *VerifiedTransaction) (bool, error) {
	if !txn.Txn.IsZeroGasPrice() {
		return false, nil
	}
	return c.CheckAddress(caller, txn.Sender())
}

// CheckAddress reports whether the address is whitelisted to send service
// transactions, consulting the certifier contract on a cache miss.
func (c *ServiceTransactionChecker) CheckAddress(caller ContractCaller, sender common.Address) (bool, error) {
	c.mu.RLock()
	allowed, ok := c.certified[sender]
	c.mu.RUnlock()
	if ok {
		return allowed, nil
	}

	contract, ok := caller.RegistryAddress(serviceTransactionRegistryName)
	if !ok {
		return false, errNoCertifier
	}
	allowed, err := c.callCertifier(caller, contract, sender)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.certified[sender] = allowed
	c.mu.Unlock()
	return allowed, nil
}

// RefreshCache re-queries the certifier for every cached address. Returns
// false without error when no certifier contract is configured.
func (c *ServiceTransactionChecker) RefreshCache(caller ContractCaller) (bool, error) {
	contract, ok := caller.RegistryAddress(serviceTransactionRegistryName)
	if !ok {
		c.mu.Lock()
		c.certified = map[common.Address]bool{}
		c.mu.Unlock()
		return false, nil
	}

	c.mu.RLock()
	addresses := make([]common.Address, 0, len(c.certified))
	for addr := range c.certified {
		addresses = append(addresses, addr)
	}
	c.mu.RUnlock()

	fresh := make(map[common.Address]bool, len(addresses))
	for _, addr := range addresses {
		allowed, err := c.callCertifier(caller, contract, addr)
		if err != nil {
			return false, err
		}
		fresh[addr] = allowed
	}

	c.mu.Lock()
	c.certified = fresh
	c.mu.Unlock()
	return true, nil
}

func (c *ServiceTransactionChecker) callCertifier(caller ContractCaller, contract, sender common.Address) (bool, error) {
	data := make([]byte, 4+32)
	copy(data, certifiedSelector)
	copy(data[4+12:], sender.Bytes())
	out, err := caller.CallContract(contract, data)
	if err != nil {
		return false, err
	}
	return len(out) == 32 && out[31] == 1, nil
}
