// Package accel serializes access to the shared accelerator resource. The
// device tolerates at most one generation per worker process; depending on
// deployment topology the gate is an in-process semaphore, a cross-process
// advisory file lock, or nothing at all (subprocess mode with a tolerant
// device).
package accel

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"
)

// Gate grants scoped, serialized access to the accelerator. The returned
// release function must be called exactly once.
type Gate interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Semaphore is the in-process gate: calls queue FIFO behind a weighted
// semaphore, independent of how many crops a request produced.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore creates an in-process gate with the given capacity
// (typically 1).
func NewSemaphore(capacity int64) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{sem: semaphore.NewWeighted(capacity)}
}

func (g *Semaphore) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// FileLock is the cross-process gate: an advisory lock on a shared path
// serializes generation across every worker process on the host.
type FileLock struct {
	path string
}

// NewFileLock creates a cross-process gate backed by the given lock file.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (g *FileLock) Acquire(ctx context.Context) (func(), error) {
	fl := flock.New(g.path)
	ok, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring accelerator lock %s: %w", g.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("accelerator lock %s not acquired", g.path)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Noop grants access unconditionally.
type Noop struct{}

func (Noop) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}
