package failuretable

import (
	"context"
	"testing"
	"time"

	g "github.com/anacrolix/generics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freenet-go/failuretable/config"
	"github.com/freenet-go/failuretable/internal/peerref"
)

func TestCleanerSweepRemovesAgedOutEntries(t *testing.T) {
	ft, peers, _, _, _ := newTestTable(t, config.WithMaxLifetime(time.Millisecond))
	key := testKey(80)
	p := peers.add(1, "p", 1)
	ft.OnFailed(key, p, 1, time.Minute)

	time.Sleep(5 * time.Millisecond)

	c := &Cleaner{ft: ft, logger: ft.logger}
	c.sweep(context.Background())

	ft.mu.Lock()
	_, ok := ft.entries.Get(key)
	ft.mu.Unlock()
	assert.False(t, ok)
}

func TestCleanerSweepRebuildsReferencedSlots(t *testing.T) {
	ft, peers, _, _, _ := newTestTable(t)
	key := testKey(81)
	p := peers.add(4, "p", 1)
	ft.OnFailed(key, p, 1, time.Minute)

	// A peer that was never recorded must not appear referenced.
	ft.mu.Lock()
	before := ft.referencedSlots.Contains(4)
	unrelated := ft.referencedSlots.Contains(99)
	ft.mu.Unlock()
	require.True(t, before)
	require.False(t, unrelated)

	c := &Cleaner{ft: ft, logger: ft.logger}
	c.sweep(context.Background())

	ft.mu.Lock()
	still := ft.referencedSlots.Contains(4)
	ft.mu.Unlock()
	assert.True(t, still, "slot 4 is still referenced after a sweep that didn't age it out")
}

func TestCleanerSweepOffersDropsExpired(t *testing.T) {
	ft, peers, _, _, _ := newTestTable(t, config.WithOfferExpiry(time.Millisecond))
	key := testKey(82)
	offerer := peers.add(8, "offerer", 1)
	ft.OnFinalFailure(key, g.None[peerref.Handle](), 10, time.Minute, g.Some(offerer))
	ft.OnOffer(key, offerer, [32]byte{})
	waitForSerial(ft)
	require.Equal(t, int64(1), ft.Stats().OffersAccepted)

	time.Sleep(5 * time.Millisecond)

	c := &Cleaner{ft: ft, logger: ft.logger}
	c.sweepOffers(time.Now())

	assert.Equal(t, int64(1), ft.Stats().OffersExpired)
	ft.mu.Lock()
	_, ok := ft.offers.Get(key)
	ft.mu.Unlock()
	assert.False(t, ok, "the offer set should be empty and removed")
}
