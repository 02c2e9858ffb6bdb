package offer

import (
	"math/rand/v2"
	"time"

	"github.com/anacrolix/missinggo/v2/panicif"
)

// Iterator walks a Set's offers in two passes - uniformly random within
// "recent" (not expired) first, then uniformly random within "expired" -
// to mitigate traffic analysis that a deterministic order would leak
// (spec.md section 4.1 get_offers).
//
// The bucket split is a snapshot taken at construction: later mutation of
// the underlying Set (by a concurrent accept/cleanup) does not reorder or
// resurrect items already drawn into this iteration, but AcceptLast and
// KeepLast act on the live Set, not the snapshot, so the Set always
// reflects committed decisions.
type Iterator struct {
	set     *Set
	rng     *rand.Rand
	recent  []Record
	expired []Record

	pending    bool // NextOffer returned an item awaiting Accept/Keep
	pendingRec Record
}

// NewIterator partitions set's current contents into recent/expired as of
// now, using rng for the random draw order. rng may be nil, in which case
// a fresh source seeded from now is used - tests that need determinism
// should always pass an explicit *rand.Rand.
func NewIterator(set *Set, rng *rand.Rand, expiry time.Duration, now time.Time) *Iterator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(now.UnixNano()), 0xda94))
	}
	snapshot := set.Snapshot()
	it := &Iterator{set: set, rng: rng}
	for _, r := range snapshot {
		if r.Expired(now, expiry) {
			it.expired = append(it.expired, r)
		} else {
			it.recent = append(it.recent, r)
		}
	}
	rng.Shuffle(len(it.recent), func(i, j int) { it.recent[i], it.recent[j] = it.recent[j], it.recent[i] })
	rng.Shuffle(len(it.expired), func(i, j int) { it.expired[i], it.expired[j] = it.expired[j], it.expired[i] })
	return it
}

// NextOffer returns the next offer, preferring recent over expired, or
// (Record{}, false) when both buckets are drained. Exactly one of
// AcceptLast or KeepLast must be called before the next NextOffer call;
// violating this is a programmer error and panics.
func (it *Iterator) NextOffer() (Record, bool) {
	panicif.True(it.pending)
	var rec Record
	var ok bool
	if len(it.recent) > 0 {
		rec, it.recent = it.recent[0], it.recent[1:]
		ok = true
	} else if len(it.expired) > 0 {
		rec, it.expired = it.expired[0], it.expired[1:]
		ok = true
	}
	if ok {
		it.pending = true
		it.pendingRec = rec
	}
	return rec, ok
}

// AcceptLast deletes the most recently returned offer from the
// underlying Set: it was used to satisfy a request and must not be
// offered again.
func (it *Iterator) AcceptLast() {
	panicif.False(it.pending)
	it.set.Remove(it.pendingRec.Peer.Slot)
	it.pending = false
}

// KeepLast leaves the most recently returned offer in the underlying Set
// untouched; it remains available to a future get_offers call.
func (it *Iterator) KeepLast() {
	panicif.False(it.pending)
	it.pending = false
}
