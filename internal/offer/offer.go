// Package offer implements the failure table's received-offer index: for
// each key, the set of peers who have told us the block is now available,
// plus the logic for turning that set into a randomized, expiry-aware
// iteration sequence (spec.md section 4.1 get_offers).
package offer

import (
	"sync"
	"time"

	"github.com/freenet-go/failuretable/internal/authtoken"
	"github.com/freenet-go/failuretable/internal/peerref"
)

// Record is one received offer.
type Record struct {
	OfferedTime   time.Time
	Peer          peerref.Handle
	Authenticator [authtoken.Size]byte
	BootID        uint64
}

// Expired reports whether the record is older than expiry as of now.
func (r Record) Expired(now time.Time, expiry time.Duration) bool {
	return now.Sub(r.OfferedTime) > expiry
}

// Set is the list of offers received for a single key. Its own mutex is
// the "fine-grained" lock from spec.md section 4.1/section 5: the failure table's
// coarse lock is always acquired first, never while holding a Set's
// lock.
type Set struct {
	mu     sync.Mutex
	offers []Record
}

func NewSet() *Set {
	return &Set{}
}

// Append adds a new offer record.
func (s *Set) Append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, r)
}

// Len returns the number of offers currently held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

// Empty reports whether the set holds no offers. Empty sets must be
// removed from the failure table's offers index (spec.md section 3).
func (s *Set) Empty() bool {
	return s.Len() == 0
}

// Snapshot copies the current offers out from under the lock, for the
// iterator to partition without racing further mutation.
func (s *Set) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.offers))
	copy(out, s.offers)
	return out
}

// Remove deletes the first record matching peer's slot, returning
// whether one was found. Used when an iterator accepts an offer (it was
// used and should not be offered again); expiry sweeps use
// CleanupExpired instead.
func (s *Set) Remove(slot uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.offers {
		if r.Peer.Slot == slot {
			s.offers = append(s.offers[:i], s.offers[i+1:]...)
			return true
		}
	}
	return false
}

// CleanupExpired drops every record older than expiry, returning how
// many were removed.
func (s *Set) CleanupExpired(now time.Time, expiry time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.offers[:0]
	removed := 0
	for _, r := range s.offers {
		if r.Expired(now, expiry) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.offers = kept
	return removed
}
