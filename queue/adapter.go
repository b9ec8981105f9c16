// Package queue implements the Queue Adapter: a thin, cluster-aware
// wrapper over an ordered-list key-value store (Redis, standalone or
// clustered) exposing exactly the primitives the coordinator and worker
// loop need — blocking pop, pipelined bulk pop, peek, expiry, and a
// server-time probe for clock-skew detection.
package queue

import (
	"context"
	"time"
)

// Adapter is the queue abstraction described in spec §4.1. Every call that
// accepts multiple keys requires the caller to have arranged for those keys
// to share a cluster hash-tag (see Keys in this package) — the adapter
// itself never rewrites keys.
type Adapter interface {
	// Push appends values to the tail of queue.
	Push(ctx context.Context, queue string, values ...string) error

	// Pop performs a non-blocking head pop. ok is false when the queue was
	// empty.
	Pop(ctx context.Context, queue string) (value string, ok bool, err error)

	// PopMulti performs a pipelined, non-blocking head pop across many
	// queues in a single round trip. The result slice has the same length
	// and order as queues; an entry is the zero value with ok=false where
	// the corresponding queue was empty. This call is never transactional
	// (a plain pipeline): if the pipeline or any single pop in it fails, err
	// is set and the result slice is nil, and values already removed by the
	// other pops are not returned.
	PopMulti(ctx context.Context, queues ...string) ([]PopResult, error)

	// BlockPop blocks until any of queues has an item or timeout elapses.
	// ok is false on timeout. Internally loops using the store's native
	// blocking-pop primitive so that a socket read timeout shorter than
	// timeout does not truncate the logical wait.
	BlockPop(ctx context.Context, timeout time.Duration, queues ...string) (queue, value string, ok bool, err error)

	// Peek reads the head of queue without removing it. ok is false when
	// empty.
	Peek(ctx context.Context, queue string) (value string, ok bool, err error)

	// Delete removes keys (queues or otherwise). Missing keys are not an
	// error.
	Delete(ctx context.Context, keys ...string) error

	// Expire sets a TTL on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Set writes value to key with an optional ttl (zero means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get reads key. ok is false when the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// LLen returns the length of queue.
	LLen(ctx context.Context, queue string) (int64, error)

	// ScanCount iterates the keyspace with SCAN, counting keys matching
	// pattern. Used for worker-liveness counting (worker_ids/*).
	ScanCount(ctx context.Context, pattern string) (int64, error)

	// Time returns the store's server wall-clock time, in seconds since
	// epoch, as a float so callers can measure skew against their own
	// monotonic/wall clock.
	Time(ctx context.Context) (float64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection(s).
	Close() error
}

// PopResult is one element of a PopMulti response.
type PopResult struct {
	Value string
	OK    bool
}
