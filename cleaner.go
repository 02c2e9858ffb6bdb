package failuretable

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"
)

// Cleaner runs the periodic expiry sweep described in spec.md section 4.5: every
// CleanupPeriod, snapshot the entries' values under the coordinator lock,
// run cleanup() on each with no lock held, then drop keys that ended up
// empty.
type Cleaner struct {
	ft       *FailureTable
	interval time.Duration
	logger   log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// StartCleaner launches a Cleaner ticking at ft's configured
// CleanupPeriod. Call Stop to end it.
func StartCleaner(ft *FailureTable) *Cleaner {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cleaner{
		ft:       ft,
		interval: ft.cfg.CleanupPeriod,
		logger:   ft.logger.WithNames("cleaner"),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Cleaner) Stop() {
	c.cancel()
	<-c.done
}

func (c *Cleaner) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one cleanup pass. Per-entry cleanup runs without any lock
// held and is fanned out across an errgroup, since each Entry serializes
// its own mutation internally; only the final is-empty removal re-takes
// the coordinator lock.
func (c *Cleaner) sweep(ctx context.Context) {
	ft := c.ft
	ft.mu.Lock()
	keys := ft.entries.Keys()
	values := ft.entries.Values()
	ft.mu.Unlock()

	now := time.Now()
	g, _ := errgroup.WithContext(ctx)
	for _, e := range values {
		e := e
		g.Go(func() error {
			e.Cleanup(ft.deps.PeerTable, now, ft.cfg.MaxLifetime)
			return nil
		})
	}
	_ = g.Wait()

	rebuiltSlots := roaring.New()
	for _, e := range values {
		rebuiltSlots.Or(e.SlotBitmap())
	}

	ft.mu.Lock()
	for i, e := range values {
		if !e.IsEmpty(now, ft.cfg.MaxLifetime) {
			continue
		}
		if cur, ok := ft.entries.Get(keys[i]); ok && cur == e {
			ft.entries.Remove(keys[i])
		}
	}
	ft.referencedSlots = rebuiltSlots
	ft.mu.Unlock()

	c.logger.WithDefaultLevel(log.Debug).Printf("cleanup swept %d entries", len(values))

	c.sweepOffers(now)
}

// sweepOffers drops expired offer records and, in turn, any OfferSet left
// empty by that (spec.md section 3: "Empty sets must be removed from the
// index"). This is a supplement beyond spec.md's explicitly-described
// Cleaner steps, which only name the entries sweep; offers decay the same
// way for the same reason (privacy, bounded memory) so the cleaner
// carries both.
func (c *Cleaner) sweepOffers(now time.Time) {
	ft := c.ft
	ft.mu.Lock()
	keys := ft.offers.Keys()
	values := ft.offers.Values()
	ft.mu.Unlock()

	removedTotal := 0
	for _, set := range values {
		removedTotal += set.CleanupExpired(now, ft.cfg.OfferExpiry)
	}
	if removedTotal > 0 {
		ft.stats.offersExpired.Add(int64(removedTotal))
		if ft.deps.Metrics != nil {
			ft.deps.Metrics.OffersExpire.Add(float64(removedTotal))
		}
	}

	ft.mu.Lock()
	for i, set := range values {
		if !set.Empty() {
			continue
		}
		if cur, ok := ft.offers.Get(keys[i]); ok && cur == set {
			ft.offers.Remove(keys[i])
		}
	}
	ft.updateSizeGauges()
	ft.mu.Unlock()
}
