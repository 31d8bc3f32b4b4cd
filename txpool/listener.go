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
	"sync"

	"github.com/ledgerwatch/log/v3"

	"github.com/aspenchain/aspen/common"
)

// Listener observes pool state transitions. Hooks are invoked synchronously
// at each mutation point, before Submit returns, so observers never miss an
// admission event. Hooks are informational mirrors; the primary error channel
// is the RejectReason returned by Submit.
type Listener interface {
	// Added is called when a transaction enters the pool. old is the
	// same-slot transaction it replaced, if any.
	Added(txn *VerifiedTransaction, old *VerifiedTransaction)
	// Rejected is called when a candidate is refused admission.
	Rejected(txn *TxnSlot, reason RejectReason)
	// Dropped is called when a pool resident is evicted under capacity
	// pressure. replacement is the transaction that took its room, if any.
	Dropped(txn *VerifiedTransaction, replacement *VerifiedTransaction)
	// Invalid is called when a resident is found invalid by the executor.
	Invalid(txn *VerifiedTransaction)
	// Canceled is called when a resident is removed on user request.
	Canceled(txn *VerifiedTransaction)
	// Culled is called when a resident is removed as mined or stale.
	Culled(txn *VerifiedTransaction)
}

// NoopListener implements Listener with no-ops; embed it to implement a
// subset of the hooks.
type NoopListener struct{}

func (NoopListener) Added(*VerifiedTransaction, *VerifiedTransaction)   {}
func (NoopListener) Rejected(*TxnSlot, RejectReason)                    {}
func (NoopListener) Dropped(*VerifiedTransaction, *VerifiedTransaction) {}
func (NoopListener) Invalid(*VerifiedTransaction)                       {}
func (NoopListener) Canceled(*VerifiedTransaction)                      {}
func (NoopListener) Culled(*VerifiedTransaction)                        {}

// Notifier batches the hashes of transactions added since the last flush and
// delivers them as one list to each registered consumer on an explicit
// Notify call. Coalescing is the contract: consumers are not called per add.
type Notifier struct {
	NoopListener

	mu        sync.Mutex
	listeners []func([]common.Hash)
	pending   []common.Hash
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier { return &Notifier{} }

// AddListener registers a new pending-hash consumer.
func (n *Notifier) AddListener(f func([]common.Hash)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, f)
}

// Added records the transaction hash for the next flush.
func (n *Notifier) Added(txn *VerifiedTransaction, _ *VerifiedTransaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, txn.Hash())
}

// Notify delivers all hashes accumulated since the previous call to every
// registered consumer, then clears the batch. No-op when the batch is empty.
func (n *Notifier) Notify() {
	n.mu.Lock()
	if len(n.pending) == 0 {
		n.mu.Unlock()
		return
	}
	batch := n.pending
	n.pending = nil
	listeners := n.listeners
	n.mu.Unlock()

	for _, l := range listeners {
		l(batch)
	}
}

// Logger is a diagnostic pool listener.
type Logger struct {
	log log.Logger
}

// NewLogger creates a Logger writing to the given logger.
func NewLogger(logger log.Logger) *Logger { return &Logger{log: logger} }

func (l *Logger) Added(txn *VerifiedTransaction, old *VerifiedTransaction) {
	l.log.Debug("[txpool] added to the pool", "hash", txn.Hash(),
		"sender", txn.Sender(), "nonce", txn.Nonce(), "feeCap", &txn.Txn.FeeCap,
		"gas", txn.Txn.Gas, "value", &txn.Txn.Value, "dataLen", txn.Txn.DataLen)
	if old != nil {
		l.log.Debug("[txpool] dropped, replaced", "hash", old.Hash(), "by", txn.Hash())
	}
}

func (l *Logger) Rejected(txn *TxnSlot, reason RejectReason) {
	l.log.Trace("[txpool] rejected", "hash", txn.IDHash, "reason", reason)
}

func (l *Logger) Dropped(txn *VerifiedTransaction, replacement *VerifiedTransaction) {
	if replacement != nil {
		l.log.Debug("[txpool] pushed out", "hash", txn.Hash(), "by", replacement.Hash())
		return
	}
	l.log.Debug("[txpool] dropped", "hash", txn.Hash())
}

func (l *Logger) Invalid(txn *VerifiedTransaction) {
	l.log.Debug("[txpool] marked as invalid by executor", "hash", txn.Hash())
}

func (l *Logger) Canceled(txn *VerifiedTransaction) {
	l.log.Debug("[txpool] canceled by the user", "hash", txn.Hash())
}

func (l *Logger) Culled(txn *VerifiedTransaction) {
	l.log.Debug("[txpool] culled or mined", "hash", txn.Hash())
}

// MultiListener fans out to multiple listeners in registration order. A
// panic in one listener is recovered and logged so delivery to the others is
// not blocked or corrupted.
type MultiListener struct {
	listeners []Listener
	log       log.Logger
}

// NewMultiListener creates a fan-out over the given listeners.
func NewMultiListener(logger log.Logger, listeners ...Listener) *MultiListener {
	return &MultiListener{listeners: listeners, log: logger}
}

// Append registers an additional listener; it is notified after all
// previously registered ones.
func (m *MultiListener) Append(l Listener) { m.listeners = append(m.listeners, l) }

func (m *MultiListener) each(f func(Listener)) {
	for _, l := range m.listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.log.Warn("[txpool] listener panicked", "err", rec)
				}
			}()
			f(l)
		}()
	}
}

func (m *MultiListener) Added(txn *VerifiedTransaction, old *VerifiedTransaction) {
	m.each(func(l Listener) { l.Added(txn, old) })
}

func (m *MultiListener) Rejected(txn *TxnSlot, reason RejectReason) {
	m.each(func(l Listener) { l.Rejected(txn, reason) })
}

func (m *MultiListener) Dropped(txn *VerifiedTransaction, replacement *VerifiedTransaction) {
	m.each(func(l Listener) { l.Dropped(txn, replacement) })
}

func (m *MultiListener) Invalid(txn *VerifiedTransaction) {
	m.each(func(l Listener) { l.Invalid(txn) })
}

func (m *MultiListener) Canceled(txn *VerifiedTransaction) {
	m.each(func(l Listener) { l.Canceled(txn) })
}

func (m *MultiListener) Culled(txn *VerifiedTransaction) {
	m.each(func(l Listener) { l.Culled(txn) })
}
