package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	linestate "coatline/internal/linestate/domain"
)

// Locker serializes processing per line with a bounded wait.
type Locker struct {
	mu      sync.Mutex
	lines   map[string]*semaphore.Weighted
	timeout time.Duration
}

// NewLocker constructs a locker; a non-positive timeout defaults to 3s.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Locker{lines: make(map[string]*semaphore.Weighted), timeout: timeout}
}

func (l *Locker) semaphore(lineID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.lines[lineID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.lines[lineID] = sem
	}
	return sem
}

// Acquire waits for the line lock. The returned release func must be called
// exactly once. ErrLockTimeout means the line stayed busy for the whole wait.
func (l *Locker) Acquire(ctx context.Context, lineID string) (func(), error) {
	if lineID == "" {
		return nil, linestate.ErrEmptyLine
	}
	sem := l.semaphore(lineID)
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, linestate.ErrLockTimeout
		}
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
