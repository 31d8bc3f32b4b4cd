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
	"container/heap"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/btree"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/log/v3"
	"go.uber.org/atomic"

	"github.com/aspenchain/aspen/common"
)

var (
	submitCounter   = metrics.GetOrCreateCounter(`aspen_txpool_submitted`)
	addedCounter    = metrics.GetOrCreateCounter(`aspen_txpool_added`)
	rejectedCounter = metrics.GetOrCreateCounter(`aspen_txpool_rejected`)
	replacedCounter = metrics.GetOrCreateCounter(`aspen_txpool_replaced`)
	evictedCounter  = metrics.GetOrCreateCounter(`aspen_txpool_evicted`)
	culledCounter   = metrics.GetOrCreateCounter(`aspen_txpool_culled`)
	removedCounter  = metrics.GetOrCreateCounter(`aspen_txpool_removed`)
	sizeGauge       = metrics.GetOrCreateGauge(`aspen_txpool_size`, nil)
)

// SenderNonce identifies one (sender, nonce) pool slot.
type SenderNonce struct {
	Sender common.Address
	Nonce  uint64
}

// PendingOrdering selects how Pending arranges the ready set.
type PendingOrdering uint8

const (
	// PendingPriority orders by priority tier, then score, then arrival.
	// Per-sender nonce order is always preserved.
	PendingPriority PendingOrdering = iota
	// PendingUnordered returns the ready set in arbitrary sender order;
	// cheaper, for consumers that re-sort or don't care.
	PendingUnordered
)

// PendingSettings bounds and orders a Pending query.
type PendingSettings struct {
	// IncludableBoundary drops transactions whose effective gas price is
	// below it; pass the current base fee post-fee-market, nil before.
	IncludableBoundary *uint256.Int
	// NonceCap excludes transactions with nonce > sender state nonce + cap.
	// Zero disables the cap.
	NonceCap uint64
	// MaxLen bounds the result length. Zero means unbounded.
	MaxLen int
	// Ordering selects Priority or Unordered assembly.
	Ordering PendingOrdering
}

// PoolStatus is a diagnostics snapshot.
type PoolStatus struct {
	PoolSize     int
	SendersCount int
	MemoryUsed   uint64
}

// senderTxns is one sender's pooled transactions, nonce ascending, with the
// score slice kept aligned: scores[i] always belongs to txns[i].
type senderTxns struct {
	txns   []*VerifiedTransaction
	scores []uint256.Int
}

// nonceIndex returns the position of nonce in the chain, or the insertion
// point and false.
func (s *senderTxns) nonceIndex(nonce uint64) (int, bool) {
	i := sort.Search(len(s.txns), func(i int) bool { return s.txns[i].Nonce() >= nonce })
	return i, i < len(s.txns) && s.txns[i].Nonce() == nonce
}

// scoreRef is the global score index entry. The score is copied at indexing
// time so the btree key stays stable while the aligned slice is spliced.
type scoreRef struct {
	txn   *VerifiedTransaction
	score uint256.Int
}

// scoreRefLess orders the index worst-first: lower score first, newer arrival
// first among equals. Insertion IDs are unique, so keys never collide.
func scoreRefLess(a, b scoreRef) bool {
	switch a.score.Cmp(&b.score) {
	case -1:
		return true
	case 1:
		return false
	}
	return a.txn.insertionID > b.txn.insertionID
}

// TxPool is the transaction admission queue. One lock guards the sender
// chains, the aligned score slices and the cross-sender score index together;
// they must never be observed out of sync. Signature recovery and the other
// CPU-bound verification steps run before the lock is taken.
type TxPool struct {
	cfg      Config
	scoring  Scoring
	verifier *Verifier
	state    ChainState
	listener Listener
	logger   log.Logger

	mu            sync.RWMutex
	senders       map[common.Address]*senderTxns
	byHash        map[common.Hash]*VerifiedTransaction
	index         *btree.BTreeG[scoreRef] // worst-first across all senders
	localsHistory *simplelru.LRU[common.Hash, struct{}]
	count         int
	memUsed       uint64
	seq           uint64 // monotonic arrival counter

	headBlock atomic.Uint64
}

// NewTxPool creates a pool over the given collaborators. listener may be nil.
func NewTxPool(cfg Config, state ChainState, verifier *Verifier, scoring Scoring, listener Listener, logger log.Logger) (*TxPool, error) {
	cfg = cfg.withDefaults()
	if listener == nil {
		listener = NoopListener{}
	}
	history, err := simplelru.NewLRU[common.Hash, struct{}](cfg.LocalsHistory, nil)
	if err != nil {
		return nil, err
	}
	return &TxPool{
		cfg:           cfg,
		scoring:       scoring,
		verifier:      verifier,
		state:         state,
		listener:      listener,
		logger:        logger,
		senders:       map[common.Address]*senderTxns{},
		byHash:        map[common.Hash]*VerifiedTransaction{},
		index:         btree.NewG(32, scoreRefLess),
		localsHistory: history,
	}, nil
}

// Submit runs the full admission pipeline on the slot and returns its hash
// together with the typed outcome; Success means the transaction is now pool
// resident. local marks operator-trusted submissions (RPC), which get the
// Local tier: price-floor exemption, per-sender cap bypass and eviction
// protection. Listener hooks fire before Submit returns.
func (p *TxPool) Submit(slot *TxnSlot, local bool) (common.Hash, RejectReason) {
	priority := PriorityRegular
	if local {
		priority = PriorityLocal
	}
	return p.submit(slot, priority)
}

func (p *TxPool) submit(slot *TxnSlot, priority Priority) (common.Hash, RejectReason) {
	submitCounter.Inc()

	if reason := p.preCheck(slot, priority); reason != Success {
		rejectedCounter.Inc()
		p.listener.Rejected(slot, reason)
		return slot.IDHash, reason
	}

	// expensive, lock-free part
	verified, reason := p.verifier.Verify(slot, priority, p.headBlock.Load())
	if reason != Success {
		rejectedCounter.Inc()
		p.listener.Rejected(slot, reason)
		return slot.IDHash, reason
	}

	p.mu.Lock()
	reason, replaced, dropped := p.insertLocked(verified)
	sizeGauge.Set(float64(p.count))
	p.mu.Unlock()

	// victims removed before a failed admission are still gone
	for _, victim := range dropped {
		evictedCounter.Inc()
		p.listener.Dropped(victim, verified)
	}
	if reason != Success {
		rejectedCounter.Inc()
		p.listener.Rejected(slot, reason)
		return verified.Hash(), reason
	}
	addedCounter.Inc()
	if replaced != nil {
		replacedCounter.Inc()
	}
	p.listener.Added(verified, replaced)
	return verified.Hash(), Success
}

// preCheck is the cheap pre-verification path: duplicate detection and the
// early slot rejection, both under a shared lock. The fast rejection runs
// only when an upstream decoder already knows the sender; zero-gas-price and
// Local candidates always proceed to full verification.
func (p *TxPool) preCheck(slot *TxnSlot, priority Priority) RejectReason {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !slot.IDHash.IsZero() {
		if _, ok := p.byHash[slot.IDHash]; ok {
			return AlreadyImported
		}
	}
	if slot.Sender == nil || priority.IsLocal() || slot.IsZeroGasPrice() {
		return Success
	}
	st, ok := p.senders[*slot.Sender]
	if !ok {
		return Success
	}
	i, occupied := st.nonceIndex(slot.Nonce)
	if !occupied {
		return Success
	}
	candidate := &VerifiedTransaction{Txn: slot, priority: priority}
	if p.scoring.ShouldRejectEarly(st.txns[i], candidate) {
		return TooCheapToReplace
	}
	return Success
}

func (p *TxPool) insertLocked(v *VerifiedTransaction) (RejectReason, *VerifiedTransaction, []*VerifiedTransaction) {
	if _, ok := p.byHash[v.Hash()]; ok {
		return AlreadyImported, nil, nil
	}

	st, ok := p.senders[v.Sender()]
	if !ok {
		st = &senderTxns{}
		p.senders[v.Sender()] = st
	}

	var old *VerifiedTransaction
	i, occupied := p.slotIndex(st, v)
	if occupied {
		old = st.txns[i]
		if p.scoring.Choose(old, v) == RejectNew {
			return TooCheapToReplace, nil, nil
		}
	}

	if old == nil && len(st.txns) >= p.cfg.PerSenderLimit && !p.scoring.ShouldIgnoreSenderLimit(v) {
		return LimitReached, nil, nil
	}

	// a replacement frees its occupant's slot and memory, so that room counts
	// toward its own admission; the occupant stays resident until admission
	// succeeds and is never picked as an eviction victim
	var occCount int
	var occMem uint64
	if old != nil {
		occCount, occMem = 1, uint64(old.Txn.Size)
	}
	score := p.candidateScore(v)
	var dropped []*VerifiedTransaction
	for p.count-occCount >= p.cfg.Capacity || p.memUsed-occMem+uint64(v.Txn.Size) > p.cfg.MemoryLimit.Bytes() {
		victim, ok := p.worstEvictable(v, old, &score)
		if !ok {
			return LimitReached, nil, dropped
		}
		p.removeLocked(victim)
		dropped = append(dropped, victim)
	}
	// eviction may have spliced (or emptied) this very chain
	st, ok = p.senders[v.Sender()]
	if !ok {
		st = &senderTxns{}
		p.senders[v.Sender()] = st
	}
	i, occupied = p.slotIndex(st, v)

	v.insertionID = p.nextSeq()
	if occupied {
		p.index.Delete(scoreRef{txn: old, score: st.scores[i]})
		delete(p.byHash, old.Hash())
		p.memUsed -= uint64(old.Txn.Size)
		p.count--
		st.txns[i] = v
		p.scoring.UpdateScores(st.txns, st.scores, Change{Kind: ChangeReplacedAt, Index: i})
		p.admitted(v, st, i)
		return Success, old, dropped
	}
	st.txns = append(st.txns, nil)
	copy(st.txns[i+1:], st.txns[i:])
	st.txns[i] = v
	st.scores = append(st.scores, uint256.Int{})
	copy(st.scores[i+1:], st.scores[i:])
	st.scores[i] = uint256.Int{}
	p.scoring.UpdateScores(st.txns, st.scores, Change{Kind: ChangeInsertedAt, Index: i})
	p.admitted(v, st, i)
	return Success, nil, dropped
}

// slotIndex locates the candidate's slot in the chain through the scoring
// policy's ordering. Compare reporting equality marks an occupied slot.
func (p *TxPool) slotIndex(st *senderTxns, v *VerifiedTransaction) (int, bool) {
	i := sort.Search(len(st.txns), func(i int) bool { return p.scoring.Compare(st.txns[i], v) >= 0 })
	return i, i < len(st.txns) && p.scoring.Compare(st.txns[i], v) == 0
}

// admitted finishes bookkeeping for a transaction that just took slot i.
func (p *TxPool) admitted(v *VerifiedTransaction, st *senderTxns, i int) {
	p.byHash[v.Hash()] = v
	p.index.ReplaceOrInsert(scoreRef{txn: v, score: st.scores[i]})
	p.memUsed += uint64(v.Txn.Size)
	p.count++
	if v.Priority().IsLocal() {
		p.localsHistory.Add(v.Hash(), struct{}{})
	}
}

// candidateScore computes the score the transaction would get if admitted,
// through the same policy path admitted transactions use.
func (p *TxPool) candidateScore(v *VerifiedTransaction) uint256.Int {
	txns := []*VerifiedTransaction{v}
	scores := make([]uint256.Int, 1)
	p.scoring.UpdateScores(txns, scores, Change{Kind: ChangeInsertedAt, Index: 0})
	return scores[0]
}

// worstEvictable finds the lowest-scored resident the candidate is allowed
// to displace: Local residents are off limits to non-local candidates, the
// slot occupant being replaced is settled separately, and the victim must
// score strictly below the candidate.
func (p *TxPool) worstEvictable(candidate, occupant *VerifiedTransaction, candidateScore *uint256.Int) (*VerifiedTransaction, bool) {
	var victim *VerifiedTransaction
	p.index.Ascend(func(ref scoreRef) bool {
		if ref.txn == occupant {
			return true
		}
		if ref.txn.Priority().IsLocal() && !candidate.Priority().IsLocal() {
			return true
		}
		if !ref.score.Lt(candidateScore) {
			return false // nothing further up can score lower
		}
		victim = ref.txn
		return false
	})
	return victim, victim != nil
}

// removeLocked unlinks the transaction from every structure. The sender's
// survivors keep their scores; ordering of the rest is unaffected.
func (p *TxPool) removeLocked(v *VerifiedTransaction) {
	st, ok := p.senders[v.Sender()]
	if !ok {
		return
	}
	i, occupied := st.nonceIndex(v.Nonce())
	if !occupied || st.txns[i] != v {
		return
	}
	p.index.Delete(scoreRef{txn: v, score: st.scores[i]})
	delete(p.byHash, v.Hash())
	p.memUsed -= uint64(v.Txn.Size)
	p.count--
	st.txns = append(st.txns[:i], st.txns[i+1:]...)
	st.scores = append(st.scores[:i], st.scores[i+1:]...)
	p.scoring.UpdateScores(st.txns, st.scores, Change{Kind: ChangeRemovedAt, Index: i})
	if len(st.txns) == 0 {
		delete(p.senders, v.Sender())
	}
}

// Pending assembles the ready set: for every sender, the gapless run of
// transactions starting exactly at the sender's state nonce, cut at the
// first entry that fails the includable boundary or the nonce cap. The
// result is a consistent snapshot; admissions racing with the call land in
// the next one.
func (p *TxPool) Pending(settings PendingSettings) []*VerifiedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if settings.Ordering == PendingUnordered {
		return p.pendingUnordered(settings)
	}
	return p.pendingByPriority(settings)
}

// readyRange returns the [from, to) ready window of the sender's chain.
func (p *TxPool) readyRange(sender common.Address, st *senderTxns, settings PendingSettings) (int, int) {
	stateNonce := p.state.CurrentNonce(sender)
	from, ok := st.nonceIndex(stateNonce)
	if !ok {
		return 0, 0 // the next executable nonce is not pooled
	}
	to := from
	expected := stateNonce
	for to < len(st.txns) && st.txns[to].Nonce() == expected {
		if settings.NonceCap > 0 && st.txns[to].Nonce() > stateNonce+settings.NonceCap {
			break
		}
		if settings.IncludableBoundary != nil &&
			st.txns[to].EffectiveGasPrice(settings.IncludableBoundary).Lt(settings.IncludableBoundary) {
			break // later nonces cannot execute without this one
		}
		to++
		expected++
	}
	return from, to
}

func (p *TxPool) pendingUnordered(settings PendingSettings) []*VerifiedTransaction {
	var out []*VerifiedTransaction
	for sender, st := range p.senders {
		from, to := p.readyRange(sender, st, settings)
		for i := from; i < to; i++ {
			out = append(out, st.txns[i])
			if settings.MaxLen > 0 && len(out) >= settings.MaxLen {
				return out
			}
		}
	}
	return out
}

func (p *TxPool) pendingByPriority(settings PendingSettings) []*VerifiedTransaction {
	h := make(pendingHeap, 0, len(p.senders))
	for sender, st := range p.senders {
		from, to := p.readyRange(sender, st, settings)
		if from < to {
			h = append(h, pendingItem{st: st, pos: from, end: to})
		}
	}
	heap.Init(&h)

	var out []*VerifiedTransaction
	for h.Len() > 0 {
		item := h[0]
		out = append(out, item.st.txns[item.pos])
		if settings.MaxLen > 0 && len(out) >= settings.MaxLen {
			break
		}
		item.pos++
		if item.pos < item.end {
			h[0] = item
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}
	return out
}

// pendingItem is one sender's cursor into its ready window.
type pendingItem struct {
	st       *senderTxns
	pos, end int
}

// pendingHeap ranks sender heads by priority tier, then score, then arrival.
// Advancing a head re-heapifies, so cross-sender order follows scores while
// each sender's nonces stay sequential.
type pendingHeap []pendingItem

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	a, b := h[i].st.txns[h[i].pos], h[j].st.txns[h[j].pos]
	if a.Priority() != b.Priority() {
		return a.Priority() > b.Priority()
	}
	as, bs := &h[i].st.scores[h[i].pos], &h[j].st.scores[h[j].pos]
	switch as.Cmp(bs) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.insertionID < b.insertionID
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(pendingItem)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Cull removes the confirmed slots and everything below them: any pooled
// transaction of an affected sender with a nonce at or under the highest
// confirmed one is unexecutable now and leaves the pool.
func (p *TxPool) Cull(confirmed []SenderNonce) {
	maxNonce := map[common.Address]uint64{}
	for _, sn := range confirmed {
		if n, ok := maxNonce[sn.Sender]; !ok || sn.Nonce > n {
			maxNonce[sn.Sender] = sn.Nonce
		}
	}

	p.mu.Lock()
	var culled []*VerifiedTransaction
	for sender, nonce := range maxNonce {
		culled = append(culled, p.cullSenderLocked(sender, nonce)...)
	}
	sizeGauge.Set(float64(p.count))
	p.mu.Unlock()

	for _, txn := range culled {
		culledCounter.Inc()
		p.listener.Culled(txn)
	}
}

// cullSenderLocked drops the sender's transactions with nonce <= maxNonce.
func (p *TxPool) cullSenderLocked(sender common.Address, maxNonce uint64) []*VerifiedTransaction {
	st, ok := p.senders[sender]
	if !ok {
		return nil
	}
	cut := sort.Search(len(st.txns), func(i int) bool { return st.txns[i].Nonce() > maxNonce })
	if cut == 0 {
		return nil
	}
	culled := make([]*VerifiedTransaction, cut)
	copy(culled, st.txns[:cut])
	for i := 0; i < cut; i++ {
		p.index.Delete(scoreRef{txn: st.txns[i], score: st.scores[i]})
		delete(p.byHash, st.txns[i].Hash())
		p.memUsed -= uint64(st.txns[i].Txn.Size)
		p.count--
	}
	st.txns = append(st.txns[:0], st.txns[cut:]...)
	st.scores = append(st.scores[:0], st.scores[cut:]...)
	p.scoring.UpdateScores(st.txns, st.scores, Change{Kind: ChangeCulled})
	if len(st.txns) == 0 {
		delete(p.senders, sender)
	}
	return culled
}

// Penalize demotes the given senders' non-local transactions by one penalty
// step, re-indexing their chains under the new scores.
func (p *TxPool) Penalize(senders ...common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sender := range senders {
		st, ok := p.senders[sender]
		if !ok {
			continue
		}
		p.reindexChainLocked(st, Change{Kind: ChangeEvent, Event: PenalizeEvent})
	}
}

// reindexChainLocked applies a bulk scoring event to one chain, keeping the
// cross-sender index consistent with the new scores.
func (p *TxPool) reindexChainLocked(st *senderTxns, change Change) {
	for i := range st.txns {
		p.index.Delete(scoreRef{txn: st.txns[i], score: st.scores[i]})
	}
	p.scoring.UpdateScores(st.txns, st.scores, change)
	for i := range st.txns {
		p.index.ReplaceOrInsert(scoreRef{txn: st.txns[i], score: st.scores[i]})
	}
}

// OnNewBlock is the per-block maintenance entry point: it moves the pool to
// the new head, rescores everything against the new base fee, culls the
// mined slots and re-injects the retracted transactions of a reorged-out
// branch at the Retracted tier. Retracted transactions remembered as local
// get their Local tier back.
func (p *TxPool) OnNewBlock(blockNumber uint64, baseFee *uint256.Int, mined []SenderNonce, retracted []*TxnSlot) {
	p.headBlock.Store(blockNumber)
	p.logger.Debug("[txpool] new block", "number", blockNumber, "baseFee", baseFee,
		"mined", len(mined), "retracted", len(retracted))

	p.mu.Lock()
	if s, ok := p.scoring.(interface{ SetBlockBaseFee(*uint256.Int) }); ok {
		s.SetBlockBaseFee(baseFee)
	}
	for _, st := range p.senders {
		p.reindexChainLocked(st, Change{Kind: ChangeEvent, Event: BlockBaseFeeChangedEvent})
	}
	p.mu.Unlock()

	p.Cull(mined)

	for _, slot := range retracted {
		priority := PriorityRetracted
		if !slot.IDHash.IsZero() {
			p.mu.Lock() // the LRU mutates recency on Get
			_, wasLocal := p.localsHistory.Get(slot.IDHash)
			p.mu.Unlock()
			if wasLocal {
				priority = PriorityLocal
			}
		}
		p.submit(slot, priority)
	}
}

// Remove takes a transaction out of the pool on user request. Returns the
// removed transaction, or nil if the hash is not pooled.
func (p *TxPool) Remove(hash common.Hash) *VerifiedTransaction {
	txn := p.dropByHash(hash)
	if txn != nil {
		removedCounter.Inc()
		p.listener.Canceled(txn)
	}
	return txn
}

// MarkInvalid drops a resident the executor found unexecutable.
func (p *TxPool) MarkInvalid(hash common.Hash) *VerifiedTransaction {
	txn := p.dropByHash(hash)
	if txn != nil {
		removedCounter.Inc()
		p.listener.Invalid(txn)
	}
	return txn
}

func (p *TxPool) dropByHash(hash common.Hash) *VerifiedTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	txn, ok := p.byHash[hash]
	if !ok {
		return nil
	}
	p.removeLocked(txn)
	sizeGauge.Set(float64(p.count))
	return txn
}

// Get returns the pooled transaction with the given hash, if any.
func (p *TxPool) Get(hash common.Hash) (*VerifiedTransaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	txn, ok := p.byHash[hash]
	return txn, ok
}

// Status reports pool occupancy.
func (p *TxPool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PoolStatus{PoolSize: p.count, SendersCount: len(p.senders), MemoryUsed: p.memUsed}
}

func (p *TxPool) nextSeq() uint64 {
	p.seq++
	return p.seq
}
