package offer

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freenet-go/failuretable/internal/peerref"
)

func rec(slot uint32, offeredAt time.Time) Record {
	return Record{OfferedTime: offeredAt, Peer: peerref.Handle{Slot: slot, BootID: 1}}
}

func TestIteratorRecentBeforeExpired(t *testing.T) {
	now := time.Now()
	s := NewSet()
	s.Append(rec(1, now.Add(-20*time.Minute))) // expired
	s.Append(rec(2, now))                      // recent
	s.Append(rec(3, now.Add(-20*time.Minute))) // expired

	it := NewIterator(s, rand.New(rand.NewPCG(1, 1)), 10*time.Minute, now)

	r, ok := it.NextOffer()
	require.True(t, ok)
	assert.Equal(t, uint32(2), r.Peer.Slot)
	it.AcceptLast()

	seen := map[uint32]bool{}
	for {
		r, ok := it.NextOffer()
		if !ok {
			break
		}
		seen[r.Peer.Slot] = true
		it.KeepLast()
	}
	assert.Equal(t, map[uint32]bool{1: true, 3: true}, seen)
}

func TestIteratorDoubleNextPanics(t *testing.T) {
	now := time.Now()
	s := NewSet()
	s.Append(rec(1, now))
	it := NewIterator(s, rand.New(rand.NewPCG(1, 1)), 10*time.Minute, now)
	_, ok := it.NextOffer()
	require.True(t, ok)
	assert.Panics(t, func() { it.NextOffer() })
}

func TestAcceptLastRemovesFromSet(t *testing.T) {
	now := time.Now()
	s := NewSet()
	s.Append(rec(1, now))
	it := NewIterator(s, rand.New(rand.NewPCG(1, 1)), 10*time.Minute, now)
	_, ok := it.NextOffer()
	require.True(t, ok)
	it.AcceptLast()
	assert.True(t, s.Empty())
}

func TestCleanupExpiredRemovesStale(t *testing.T) {
	now := time.Now()
	s := NewSet()
	s.Append(rec(1, now.Add(-20*time.Minute)))
	s.Append(rec(2, now))
	removed := s.CleanupExpired(now, 10*time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}
