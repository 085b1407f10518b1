package trading

import (
	"context"
	"fmt"
	"sync"

	"paper-trader/apperr"
)

// userLocks serializes work per user. Entries are dropped once no one
// holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// Lock blocks until the caller owns userID's lock or ctx is done. The
// returned func releases the lock.
func (u *userLocks) Lock(ctx context.Context, userID string) (func(), error) {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{sem: make(chan struct{}, 1)}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			u.release(userID, l)
		}, nil
	case <-ctx.Done():
		u.release(userID, l)
		return nil, apperr.FromContext(fmt.Errorf("wait for trade lock: %w", ctx.Err()))
	}
}

func (u *userLocks) release(userID string, l *userLock) {
	u.mu.Lock()
	defer u.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(u.locks, userID)
	}
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
