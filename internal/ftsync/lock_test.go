package ftsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutexDeferRunsAfterUnlock(t *testing.T) {
	var m Mutex
	var ranWhileLocked bool

	m.Lock()
	m.Defer(func() {
		ranWhileLocked = m.allowDefers
	})
	assert.False(t, ranWhileLocked) // not run yet
	m.Unlock()

	assert.False(t, ranWhileLocked)
}

func TestMutexDeferUniqueCollapses(t *testing.T) {
	var m Mutex
	calls := 0

	m.Lock()
	m.DeferUnique("k", func() { calls++ })
	m.DeferUnique("k", func() { calls++ })
	m.Unlock()

	assert.Equal(t, 1, calls)
}

func TestMutexPanicsOnUnlockWithoutLock(t *testing.T) {
	var m Mutex
	m.Lock()
	defer m.Unlock()
	assert.Panics(t, func() {
		// Unlock without a matching Lock call on a fresh mutex must panic
		// via panicif.
		var other Mutex
		other.Unlock()
	})
}
