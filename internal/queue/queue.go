// Package queue implements the typed FIFO abstraction used to connect
// pipeline stages (spec.md §4.C): bounded capacity, blocking put/get
// with a timeout, and a choice of in-process and cross-process
// backends selected purely by configuration.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrFull is returned by Put when the queue is at capacity and the
// timeout elapses before a slot frees up.
var ErrFull = errors.New("queue: full")

// ErrClosed is returned by Get/Put once the queue has been closed.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded FIFO of T. Get returns (zero, false, nil) rather
// than an error on an empty-queue timeout, so long-running consumers
// can loop quickly and re-check their own stop/cancel state (spec.md
// §8 "Empty queue get with timeout returns absence, not error").
type Queue[T any] interface {
	// Put enqueues item, blocking up to timeout if the queue is full.
	// timeout <= 0 means block indefinitely (bounded only by ctx).
	Put(ctx context.Context, item T, timeout time.Duration) error

	// Get dequeues the head item, blocking up to timeout if empty.
	// ok is false on a timeout with no item available.
	Get(ctx context.Context, timeout time.Duration) (item T, ok bool, err error)

	// IsThreadSafe reports whether this queue may be shared by
	// multiple goroutines within one process.
	IsThreadSafe() bool

	// IsProcessSafe reports whether this queue may be shared across
	// process boundaries (e.g. a Redis-backed queue).
	IsProcessSafe() bool

	// Close releases any resources held by the queue (connections,
	// background goroutines). Safe to call once.
	Close() error
}
