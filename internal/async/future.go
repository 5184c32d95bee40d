// Package async provides the deferred-completion primitives the
// subscription index uses to keep its public API non-blocking: every
// store write or bus publish is submitted to a worker pool, and callers
// are handed back a Future instead of waiting on the result inline.
package async

import "context"

// Future is a one-shot deferred completion handle. It is safe to call Wait
// from multiple goroutines; the first error, if any, is cached and replayed.
type Future struct {
	done chan struct{}
	err  error
}

// NewFuture returns a Future that completes when Resolve is called.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve completes the future. Only the first call has effect.
func (f *Future) Resolve(err error) {
	select {
	case <-f.done:
		return // already resolved
	default:
	}
	f.err = err
	close(f.done)
}

// Wait blocks until the future resolves or ctx is cancelled, whichever
// comes first. A context cancellation does not resolve the future itself —
// work already submitted to the pool keeps running to completion, per the
// cancellation semantics in the concurrency model: in-flight remote writes
// are not reversed once dispatched.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether the future has resolved without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Resolved returns an already-completed future, used for local-only
// operations (ephemeral/sys) that never suspend.
func Resolved(err error) *Future {
	f := NewFuture()
	f.Resolve(err)
	return f
}
