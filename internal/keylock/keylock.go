// Package keylock implements a per-key lock table whose waiters park on
// one-shot release channels.
package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLockConflict is returned by Lock when the key is already held.
	ErrLockConflict = errors.New("keylock: key already locked")
	// ErrInvalidState is returned by Unlock when the key is not held.
	ErrInvalidState = errors.New("keylock: key not locked")
)

// Table maps keys to the release signal of their current holder.
// A key is locked exactly while it has a slot in the table.
//
// Concurrency notes:
//   - Table has no mutex of its own. Every method must be called with the
//     owner's guarding mutex held, the same way sync.Cond requires its L.
//   - Wait releases that mutex only while parked and re-acquires it before
//     returning, so a Wait followed by Lock (or by any mutation) under the
//     same mutex is atomic with respect to other holders of the mutex.
//   - Unlock closes the slot channel, which wakes every parked waiter at
//     once. Waiters re-check the table, so only one of them can win a
//     subsequent Lock; the rest park again.
type Table[K comparable] struct {
	m map[K]chan struct{}
}

// Locked reports whether k currently has a slot.
func (t *Table[K]) Locked(k K) bool {
	_, ok := t.m[k]
	return ok
}

// Len returns the number of held keys.
func (t *Table[K]) Len() int { return len(t.m) }

// Wait blocks until k is not locked. It returns false without touching mu
// if k was free on entry and true if it had to park at least once.
// mu must be held on entry and is held on return.
func (t *Table[K]) Wait(mu sync.Locker, k K) bool {
	waited, _ := t.WaitContext(context.Background(), mu, k)
	return waited
}

// WaitContext is Wait bounded by ctx. If ctx is done while parked it
// re-acquires mu and returns ctx.Err(); the caller must not assume k is free.
func (t *Table[K]) WaitContext(ctx context.Context, mu sync.Locker, k K) (bool, error) {
	ch, ok := t.m[k]
	if !ok {
		return false, nil
	}
	for ok {
		mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			mu.Lock()
			return true, ctx.Err()
		}
		mu.Lock()
		// The slot may have been re-installed by a waiter that got the
		// mutex first.
		ch, ok = t.m[k]
	}
	return true, nil
}

// Lock installs a fresh slot for k. It does not block: callers are expected
// to Wait first under the same mutex.
func (t *Table[K]) Lock(k K) error {
	if _, ok := t.m[k]; ok {
		return fmt.Errorf("%w: %v", ErrLockConflict, k)
	}
	if t.m == nil {
		t.m = make(map[K]chan struct{})
	}
	t.m[k] = make(chan struct{})
	return nil
}

// Unlock removes the slot for k and wakes all of its waiters.
func (t *Table[K]) Unlock(k K) error {
	ch, ok := t.m[k]
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidState, k)
	}
	delete(t.m, k)
	close(ch)
	return nil
}
