package ftsync

import "sync"

// Event is a broadcast-only condition variable, safe to pair with a
// Mutex or any other sync.Locker - including ones, like Mutex above,
// that run deferred actions on Unlock. sync.Cond doesn't mix well with
// such lockers because it reaches into the locker's internals; Event
// only ever calls Lock/Unlock.
type Event struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// Wait registers for the next Broadcast, then releases locker and blocks
// until that broadcast happens, re-acquiring locker before returning.
// The caller must hold locker when calling Wait.
func (e *Event) Wait(locker sync.Locker) {
	e.mu.Lock()
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	locker.Unlock()
	<-ch
	locker.Lock()
}

// Broadcast wakes every goroutine currently blocked in Wait.
func (e *Event) Broadcast() {
	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}
