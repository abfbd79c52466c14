// Package transport defines the asynchronous point-to-point message
// runtime the join core assumes (spec.md §6.3): rank/size, fire-and-forget
// sends dispatched through a per-peer handler table, a barrier that also
// drains in-flight messages, and a collective sum reduction.
//
// internal/transport/inprocess implements this for a single-process,
// multi-goroutine cohort (used by tests and single-host runs);
// internal/transport/tcp implements it for a real multi-process cohort.
package transport

import "context"

// HandlerFunc is a remote-invocable handler, registered under a handler
// ID with Handle and invoked once per delivered message addressed to that
// ID. from is the rank that sent the message.
type HandlerFunc func(from uint32, payload any) error

// Transport is the message runtime contract the join core depends on.
type Transport interface {
	// Rank returns this peer's rank in [0, Size()).
	Rank() uint32

	// Size returns the cohort size N.
	Size() uint32

	// Handle registers fn to run for every message sent to handlerID.
	// Must be called before any peer might send to handlerID (in
	// practice, before the barrier that ends phase 0).
	Handle(handlerID string, fn HandlerFunc)

	// SendAsync delivers payload to dest's handler for handlerID.
	// Delivery is reliable, exactly-once, and unordered relative to
	// other sends; completion is only guaranteed by the next Barrier.
	SendAsync(dest uint32, handlerID string, payload any) error

	// Barrier blocks until every peer has entered Barrier and every
	// message sent by any peer before entering has been delivered and
	// its handler has returned.
	Barrier(ctx context.Context) error

	// AllReduceSum returns the sum of x across all peers, available
	// identically on every peer once it returns.
	AllReduceSum(ctx context.Context, x uint64) (uint64, error)

	// Close releases any resources held by the transport (sockets,
	// goroutines). Safe to call once, after the cohort is done.
	Close() error
}
