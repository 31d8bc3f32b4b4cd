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
	"github.com/c2h5oh/datasize"
	"github.com/holiman/uint256"
)

// Config bounds pool admission.
type Config struct {
	// Capacity is the maximum number of pool-resident transactions.
	Capacity int
	// PerSenderLimit caps the slots one sender may occupy. Local
	// transactions bypass it.
	PerSenderLimit int
	// MemoryLimit bounds the total encoded size of pool residents.
	MemoryLimit datasize.ByteSize
	// MaxTxnSize bounds a single encoded transaction.
	MaxTxnSize datasize.ByteSize
	// MinGasPrice is the admission price floor for non-local transactions.
	// Zero-gas-price transactions are admitted only for certified senders.
	MinGasPrice uint256.Int
	// LocalsHistory is the number of recently seen local transaction hashes
	// remembered across retraction, so re-imported locals keep their tier.
	LocalsHistory int
}

// DefaultConfig is the pool configuration used when a zero Config is given.
var DefaultConfig = Config{
	Capacity:       8 * 1024,
	PerSenderLimit: 16,
	MemoryLimit:    256 * datasize.MB,
	MaxTxnSize:     128 * datasize.KB,
	MinGasPrice:    *uint256.NewInt(1),
	LocalsHistory:  1024,
}

func (c Config) withDefaults() Config {
	if c.Capacity == 0 {
		c.Capacity = DefaultConfig.Capacity
	}
	if c.PerSenderLimit == 0 {
		c.PerSenderLimit = DefaultConfig.PerSenderLimit
	}
	if c.MemoryLimit == 0 {
		c.MemoryLimit = DefaultConfig.MemoryLimit
	}
	if c.MaxTxnSize == 0 {
		c.MaxTxnSize = DefaultConfig.MaxTxnSize
	}
	if c.LocalsHistory == 0 {
		c.LocalsHistory = DefaultConfig.LocalsHistory
	}
	return c
}
