package failuretable

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
)

// count is an atomic int64 counter, adapted from the reference client's
// connection-stats Count type: same String/MarshalJSON contract, used
// here for failure-table-wide counters instead of per-connection byte
// counts.
type count struct{ n int64 }

var _ fmt.Stringer = (*count)(nil)

func (c *count) Add(n int64)   { atomic.AddInt64(&c.n, n) }
func (c *count) Int64() int64  { return atomic.LoadInt64(&c.n) }
func (c *count) String() string { return strconv.FormatInt(c.Int64(), 10) }
func (c *count) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.n)
}

// Stats holds the failure table's lifetime counters. A Snapshot is cheap
// to read in-process without a Prometheus scrape; ftmetrics mirrors the
// same numbers as Prometheus collectors for export.
type Stats struct {
	entriesCreated count
	entriesEvicted count
	offersAccepted count
	offersRejected count
	offersExpired  count
	offersEvicted  count
	uidsReleased   count
	lowMemoryHits  count
	oomHits        count
}

// Snapshot is a point-in-time copy of Stats, safe to read without races.
type Snapshot struct {
	EntriesCreated int64
	EntriesEvicted int64
	OffersAccepted int64
	OffersRejected int64
	OffersExpired  int64
	OffersEvicted  int64
	UIDsReleased   int64
	LowMemoryHits  int64
	OOMHits        int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		EntriesCreated: s.entriesCreated.Int64(),
		EntriesEvicted: s.entriesEvicted.Int64(),
		OffersAccepted: s.offersAccepted.Int64(),
		OffersRejected: s.offersRejected.Int64(),
		OffersExpired:  s.offersExpired.Int64(),
		OffersEvicted:  s.offersEvicted.Int64(),
		UIDsReleased:   s.uidsReleased.Int64(),
		LowMemoryHits:  s.lowMemoryHits.Int64(),
		OOMHits:        s.oomHits.Int64(),
	}
}
