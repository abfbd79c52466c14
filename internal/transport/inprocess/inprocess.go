// Package inprocess implements internal/transport.Transport for a cohort
// that runs as goroutines within a single process, generalized from the
// teacher's distributed/communication.MemoryTransport (a registry of
// in-memory services keyed by address) into a rank-addressed message
// runtime with fire-and-forget sends, a draining barrier, and a sum
// reduction. It is the transport internal/join's own tests run against,
// and is suitable for single-host development runs of the driver.
package inprocess

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"bytedb/internal/transport"
)

type envelope struct {
	from      uint32
	handlerID string
	payload   any
}

// hub is the shared state visible to every peer in one cohort: the
// message-accounting counters the barrier uses to detect quiescence, and
// the generational rendezvous counters for the barrier and the reduction.
type hub struct {
	n     int
	peers []*Peer

	sentTotal      atomic.Int64
	deliveredTotal atomic.Int64

	barrierArrived atomic.Int32
	barrierGen     atomic.Int32

	reduceMu    sync.Mutex
	reduceRound *reduceRound
}

// reduceRound holds the accumulating state of one in-flight AllReduceSum
// call. sum and seen are mutated and read only while holding mu; sum is
// read back once done is closed.
type reduceRound struct {
	mu   sync.Mutex
	sum  uint64
	seen int
	done chan struct{}
}

// Peer is one cohort member's handle onto the shared in-process runtime.
type Peer struct {
	rank uint32
	hub  *hub

	mu     sync.Mutex
	inbox  []envelope
	closed bool

	handlersMu sync.RWMutex
	handlers   map[string]transport.HandlerFunc
}

// NewCohort builds n Peer transports sharing one in-process hub, indexed
// by rank 0..n-1.
func NewCohort(n int) []*Peer {
	if n <= 0 {
		panic("inprocess: cohort size must be positive")
	}
	h := &hub{n: n}
	peers := make([]*Peer, n)
	for i := range peers {
		peers[i] = &Peer{
			rank:     uint32(i),
			hub:      h,
			handlers: make(map[string]transport.HandlerFunc),
		}
	}
	h.peers = peers
	return peers
}

func (p *Peer) Rank() uint32 { return p.rank }
func (p *Peer) Size() uint32 { return uint32(p.hub.n) }

func (p *Peer) Handle(handlerID string, fn transport.HandlerFunc) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[handlerID] = fn
}

// SendAsync enqueues payload on dest's inbox. The enqueue itself never
// blocks (the inbox is an unbounded mutex-guarded slice, not a bounded
// channel): the cohort is small enough per spec.md's memory-bound note
// that unbounded per-destination queuing between barriers is acceptable,
// and it avoids the cross-peer deadlock a bounded channel would risk if
// neither side pumps until its own Barrier call.
func (p *Peer) SendAsync(dest uint32, handlerID string, payload any) error {
	if int(dest) >= p.hub.n {
		return fmt.Errorf("inprocess: destination rank %d out of range [0,%d)", dest, p.hub.n)
	}
	target := p.hub.peers[dest]
	p.hub.sentTotal.Add(1)
	target.mu.Lock()
	target.inbox = append(target.inbox, envelope{from: p.rank, handlerID: handlerID, payload: payload})
	target.mu.Unlock()
	return nil
}

// pump drains every message currently queued in the peer's inbox,
// invoking each one's registered handler inline on the calling
// goroutine. Because a peer only ever pumps its own inbox from its own
// goroutine (during Barrier or an explicit progress-pump call), handler
// bodies never run concurrently with that peer's own phase code, so
// handler-mutated per-peer state (HashIndex, MergeCandidates, JoinData)
// needs no locking of its own, matching spec.md §5's single-threaded
// cooperative model.
func (p *Peer) pump() error {
	p.mu.Lock()
	batch := p.inbox
	p.inbox = nil
	p.mu.Unlock()

	for _, e := range batch {
		p.handlersMu.RLock()
		fn, ok := p.handlers[e.handlerID]
		p.handlersMu.RUnlock()
		if !ok {
			return fmt.Errorf("inprocess: no handler registered for %q", e.handlerID)
		}
		if err := fn(e.from, e.payload); err != nil {
			return err
		}
		p.hub.deliveredTotal.Add(1)
	}
	return nil
}

// Pump is the explicit progress-pump primitive spec.md §5 asks
// implementers to insert every K sends when the runtime lacks its own
// flow control. inprocess's inbox is unbounded, so callers do not need to
// call this for correctness, but internal/join's phase-1 partitioning
// calls it every 4096 sends anyway to bound memory and keep handler-side
// state fresh during long local scans.
func (p *Peer) Pump() error { return p.pump() }

// Barrier blocks until every peer in the cohort has called Barrier and
// every message sent before any peer's call has been delivered. It keeps
// draining its own inbox while waiting so that inbound handlers (which
// this cohort never uses to trigger further sends) cannot stall the
// rendezvous.
func (p *Peer) Barrier(ctx context.Context) error {
	myGen := p.hub.barrierGen.Load()
	p.hub.barrierArrived.Add(1)

	for {
		if err := p.pump(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.hub.barrierGen.Load() != myGen {
			return nil
		}
		if int(p.hub.barrierArrived.Load()) == p.hub.n &&
			p.hub.sentTotal.Load() == p.hub.deliveredTotal.Load() {
			if p.hub.barrierGen.CompareAndSwap(myGen, myGen+1) {
				p.hub.barrierArrived.Store(0)
				p.hub.sentTotal.Store(0)
				p.hub.deliveredTotal.Store(0)
				return nil
			}
		}
		runtime.Gosched()
		time.Sleep(time.Microsecond)
	}
}

// AllReduceSum is a simple generational rendezvous: every peer
// contributes x, the last arrival computes the sum and wakes the rest,
// and every peer (including the last arrival) reads the final sum back.
func (p *Peer) AllReduceSum(ctx context.Context, x uint64) (uint64, error) {
	h := p.hub

	h.reduceMu.Lock()
	if h.reduceRound == nil {
		h.reduceRound = &reduceRound{done: make(chan struct{})}
	}
	r := h.reduceRound
	h.reduceMu.Unlock()

	r.mu.Lock()
	r.sum += x
	r.seen++
	last := r.seen == h.n
	r.mu.Unlock()

	if last {
		h.reduceMu.Lock()
		h.reduceRound = nil
		h.reduceMu.Unlock()
		close(r.done)
	} else {
		select {
		case <-r.done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sum, nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
