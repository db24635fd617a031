package checkin

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy means the per-participant lock could not be acquired within the
// bounded wait. The coordinator retries a few times before surfacing it so
// a physical scanner never hangs on contention.
var ErrBusy = errors.New("participant is being processed by another station")

// ParticipantLocker serializes redemptions per participant. Attempts for
// different participants proceed in parallel; attempts for the same
// participant queue behind one another.
type ParticipantLocker interface {
	Acquire(ctx context.Context, participantID string) (release func(), err error)
}

// LocalLocker is the in-process implementation: a semaphore per participant
// with a bounded wait. Suitable for a single service instance; deployments
// with several instances use the Redis lock in the redislock package.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
	wait  time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

const defaultLockWait = 2 * time.Second

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &LocalLocker{
		locks: make(map[string]*lockEntry),
		wait:  wait,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, participantID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[participantID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[participantID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.unref(participantID, entry)
		}, nil
	case <-timer.C:
		l.unref(participantID, entry)
		return nil, ErrBusy
	case <-ctx.Done():
		l.unref(participantID, entry)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) unref(participantID string, entry *lockEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, participantID)
	}
	l.mu.Unlock()
}
