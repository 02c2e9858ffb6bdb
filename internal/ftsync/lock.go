// Package ftsync provides the failure table's coarse lock: a mutex that
// lets a critical section schedule actions to run immediately after
// Unlock, outside the lock. This is how the coordinator satisfies "never
// hold the coarse lock during expensive work" (offer fan-out, client
// notifications) as a structural property of the lock itself, rather
// than a convention every call site has to remember.
//
// Adapted from the request-routing layer's lockWithDeferreds, built the
// same way: on top of github.com/anacrolix/sync's drop-in mutex,
// github.com/anacrolix/generics' nil-safe map helpers, and
// github.com/anacrolix/missinggo/v2/panicif's fast-fail assertions.
package ftsync

import (
	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
	xsync "github.com/anacrolix/sync"
)

// Mutex guards the failure table's two LRU indices. Lock/Unlock behave
// like sync.Mutex; Defer schedules action to run after the next Unlock,
// with the lock already released, so entry/offer fan-out and client-queue
// notifications never run while the coarse lock is held.
type Mutex struct {
	internal      xsync.Mutex
	allowDefers   bool
	unlockActions []func()
	uniqueActions map[any]struct{}
}

func (m *Mutex) Lock() {
	m.internal.Lock()
	panicif.True(m.allowDefers)
	m.allowDefers = true
}

func (m *Mutex) Unlock() {
	panicif.False(m.allowDefers)
	m.allowDefers = false
	actions := m.unlockActions
	m.unlockActions = nil
	m.uniqueActions = nil
	m.internal.Unlock()
	// Run after releasing the internal mutex: these actions are exactly
	// the expensive/blocking work the coarse lock must not be held for.
	for _, action := range actions {
		action()
	}
}

// Defer schedules action to run once, after the current Unlock, with the
// lock released. It must be called while the lock is held.
func (m *Mutex) Defer(action func()) {
	panicif.False(m.allowDefers)
	m.unlockActions = append(m.unlockActions, action)
}

// DeferUnique schedules action keyed by key, collapsing duplicate
// schedules within the same critical section into a single call (e.g. if
// the same key is touched twice before Unlock, its notification fires
// once).
func (m *Mutex) DeferUnique(key any, action func()) {
	panicif.False(m.allowDefers)
	g.MakeMapIfNil(&m.uniqueActions)
	if g.MapContains(m.uniqueActions, key) {
		return
	}
	m.uniqueActions[key] = struct{}{}
	m.Defer(action)
}
