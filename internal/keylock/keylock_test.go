package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// spyLocker reports every Unlock so a test knows when a waiter has parked.
type spyLocker struct {
	mu     *sync.Mutex
	parked chan struct{}
}

func (s spyLocker) Lock() { s.mu.Lock() }
func (s spyLocker) Unlock() {
	s.mu.Unlock()
	select {
	case s.parked <- struct{}{}:
	default:
	}
}

func newSpy(mu *sync.Mutex) spyLocker {
	return spyLocker{mu: mu, parked: make(chan struct{}, 1)}
}

func TestTable_WaitOnFreeKeyDoesNotPark(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		tbl Table[string]
	)
	spy := newSpy(&mu)

	mu.Lock()
	waited := tbl.Wait(spy, "k")
	mu.Unlock()

	assert.False(t, waited)
	select {
	case <-spy.parked:
		t.Fatal("Wait on a free key must not release the mutex")
	default:
	}
}

func TestTable_LockConflictAndInvalidState(t *testing.T) {
	t.Parallel()

	var tbl Table[string]

	err := tbl.Unlock("k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))

	require.NoError(t, tbl.Lock("k"))
	assert.True(t, tbl.Locked("k"))
	assert.Equal(t, 1, tbl.Len())

	err = tbl.Lock("k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockConflict))

	require.NoError(t, tbl.Unlock("k"))
	assert.False(t, tbl.Locked("k"))
	assert.Equal(t, 0, tbl.Len())
}

// Unlock must wake every parked waiter, not just one.
func TestTable_UnlockWakesAllWaiters(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		tbl Table[string]
	)
	require.NoError(t, tbl.Lock("k"))

	const waiters = 8
	spies := make([]spyLocker, waiters)
	var g errgroup.Group
	for i := range spies {
		spy := newSpy(&mu)
		spies[i] = spy
		g.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			if !tbl.Wait(spy, "k") {
				return errors.New("waiter did not park")
			}
			return nil
		})
	}
	for _, s := range spies {
		<-s.parked
	}

	mu.Lock()
	require.NoError(t, tbl.Unlock("k"))
	mu.Unlock()

	require.NoError(t, g.Wait())
}

// A waiter woken by Unlock must park again if the key was re-locked before
// it got the mutex back.
func TestTable_WaitRechecksAfterRelock(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		tbl Table[string]
	)
	require.NoError(t, tbl.Lock("k"))

	spy := newSpy(&mu)
	done := make(chan bool, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		done <- tbl.Wait(spy, "k")
	}()
	<-spy.parked

	// Release and immediately re-acquire without letting the waiter in.
	mu.Lock()
	require.NoError(t, tbl.Unlock("k"))
	require.NoError(t, tbl.Lock("k"))
	mu.Unlock()

	select {
	case <-done:
		t.Fatal("waiter returned while the key was still locked")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	require.NoError(t, tbl.Unlock("k"))
	mu.Unlock()

	select {
	case waited := <-done:
		assert.True(t, waited)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released")
	}
}

func TestTable_WaitContextCancelled(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		tbl Table[string]
	)
	require.NoError(t, tbl.Lock("k"))

	ctx, cancel := context.WithCancel(context.Background())
	spy := newSpy(&mu)
	type result struct {
		waited   bool
		err      error
		stillLkd bool
	}
	res := make(chan result, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		w, err := tbl.WaitContext(ctx, spy, "k")
		res <- result{waited: w, err: err, stillLkd: tbl.Locked("k")}
	}()
	<-spy.parked
	cancel()

	r := <-res
	assert.True(t, r.waited)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.True(t, r.stillLkd, "cancellation must not release the holder's lock")
}
