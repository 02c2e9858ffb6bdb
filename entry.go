package failuretable

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/log"

	"github.com/freenet-go/failuretable/internal/authtoken"
	"github.com/freenet-go/failuretable/internal/peerref"
)

// requestorRecord is a peer that asked us for a key.
type requestorRecord struct {
	peer      peerref.Handle
	lastAsked time.Time
}

// routedRecord is a peer we tried routing the request to.
type routedRecord struct {
	peer         peerref.Handle
	lastTried    time.Time
	timeoutUntil time.Time
	htl          int
}

// Entry is the per-key record described in spec.md section 3/section 4.2: who asked us,
// who we asked, and when. It has its own lock, which may be taken while
// the FailureTable's coarse lock is held but never the other way round
// (spec.md section 4.1's lock order: FailureTable first, then
// Entry/OfferSet, never the reverse).
type Entry struct {
	mu sync.Mutex

	key          Key
	requestors   map[uint32]requestorRecord
	routedTo     map[uint32]routedRecord
	creationTime time.Time
	lastUpdate   time.Time

	logger log.Logger
}

// NewEntry creates an empty Entry for key.
func NewEntry(key Key, now time.Time, logger log.Logger) *Entry {
	return &Entry{
		key:          key,
		requestors:   make(map[uint32]requestorRecord),
		routedTo:     make(map[uint32]routedRecord),
		creationTime: now,
		lastUpdate:   now,
		logger:       logger,
	}
}

func (e *Entry) Key() Key { return e.key }

// FailedTo records that routing to peer failed, with the given timeout
// and htl. If peer was already recorded with a later expiry, the later
// one is kept (spec.md section 4.2).
func (e *Entry) FailedTo(peer peerref.Handle, timeout time.Duration, now time.Time, htl int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	expires := now.Add(timeout)
	if existing, ok := e.routedTo[peer.Slot]; ok && existing.timeoutUntil.After(expires) {
		expires = existing.timeoutUntil
	}
	e.routedTo[peer.Slot] = routedRecord{peer: peer, lastTried: now, timeoutUntil: expires, htl: htl}
	e.lastUpdate = now
}

// AddRequestor records that peer asked us for this key.
func (e *Entry) AddRequestor(peer peerref.Handle, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestors[peer.Slot] = requestorRecord{peer: peer, lastAsked: now}
	e.lastUpdate = now
}

// AskedFromPeer reports whether we routed this request to peer.
func (e *Entry) AskedFromPeer(peer peerref.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.routedTo[peer.Slot]
	return ok
}

// AskedByPeer reports whether peer asked us for this key.
func (e *Entry) AskedByPeer(peer peerref.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.requestors[peer.Slot]
	return ok
}

// OthersWant reports whether any requestor other than excluded (if set)
// is still recorded as interested.
func (e *Entry) OthersWant(excluded peerref.Handle, hasExcluded bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for slot := range e.requestors {
		if hasExcluded && slot == excluded.Slot {
			continue
		}
		return true
	}
	return false
}

// IsEmpty reports whether the entry has nothing left to track: no
// requestors, no routed-to peers, or its total age exceeds MAX_LIFETIME
// regardless of contents (spec.md section 9 open question, resolved in
// DESIGN.md: age past MAX_LIFETIME makes an entry unconditionally
// empty).
func (e *Entry) IsEmpty(now time.Time, maxLifetime time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now.Sub(e.creationTime) > maxLifetime {
		return true
	}
	return len(e.requestors) == 0 && len(e.routedTo) == 0
}

// Cleanup drops stale members: requestors/routed-to peers whose weak
// reference no longer resolves, whose record age exceeds MAX_LIFETIME,
// or (routed-to only) whose timeout has fully elapsed, since an elapsed
// timeout carries no remaining information once it's past. It returns
// true if anything was mutated.
func (e *Entry) Cleanup(table peerref.Table, now time.Time, maxLifetime time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	if now.Sub(e.creationTime) > maxLifetime {
		if len(e.requestors) != 0 || len(e.routedTo) != 0 {
			e.requestors = make(map[uint32]requestorRecord)
			e.routedTo = make(map[uint32]routedRecord)
			changed = true
		}
		return changed
	}

	for slot, r := range e.requestors {
		if _, ok := r.peer.Resolve(table); !ok || now.Sub(r.lastAsked) > maxLifetime {
			delete(e.requestors, slot)
			changed = true
		}
	}
	for slot, r := range e.routedTo {
		if _, ok := r.peer.Resolve(table); !ok || now.Sub(r.lastTried) > maxLifetime || now.After(r.timeoutUntil) {
			delete(e.routedTo, slot)
			changed = true
		}
	}
	return changed
}

// RemovePeer drops slot from both requestor and routed-to sets. Used by
// on_disconnect to proactively prune a peer we've just learned is gone,
// rather than waiting for the next cleanup sweep to notice Resolve
// failing (spec.md section 9: the reference on_disconnect is a documented no-op
// FIXME; proactive pruning here is a SPEC_FULL supplement, not a
// contradiction).
func (e *Entry) RemovePeer(slot uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.requestors, slot)
	delete(e.routedTo, slot)
}

// TimeoutFor returns the recorded timeout deadline for peer, if any.
func (e *Entry) TimeoutFor(peer peerref.Handle) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.routedTo[peer.Slot]
	if !ok {
		return time.Time{}, false
	}
	return r.timeoutUntil, true
}

// OutgoingOffer is one offer to be sent, produced by Offer.
type OutgoingOffer struct {
	Peer          peerref.Handle
	Authenticator [authtoken.Size]byte
}

// Offer builds the set of BlockOffer messages to send to every current
// requestor whose weak reference still resolves (spec.md section 4.2). It
// takes a brief snapshot under the entry's own lock and returns; callers
// perform the actual network sends with no lock held.
func (e *Entry) Offer(authKey authtoken.Key, table peerref.Table) []OutgoingOffer {
	e.mu.Lock()
	requestors := make([]requestorRecord, 0, len(e.requestors))
	for _, r := range e.requestors {
		requestors = append(requestors, r)
	}
	key := e.key
	e.mu.Unlock()

	out := make([]OutgoingOffer, 0, len(requestors))
	for _, r := range requestors {
		p, ok := r.peer.Resolve(table)
		if !ok {
			continue
		}
		out = append(out, OutgoingOffer{
			Peer:          r.peer,
			Authenticator: authtoken.Compute(authKey, key, p.Identity()),
		})
	}
	return out
}

// snapshot is a testing/diagnostic helper exposing counts without
// leaking the internal maps.
func (e *Entry) snapshot() (requestors, routedTo int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requestors), len(e.routedTo)
}

// SlotBitmap returns the set of peer slots referenced by this entry
// (union of requestors and routed-to), as a roaring bitmap. Used by
// FailureTable to maintain a cheap, append-only superset of
// still-possibly-referenced slots, so on_disconnect can skip scanning
// every entry for a peer that was never recorded anywhere.
func (e *Entry) SlotBitmap() *roaring.Bitmap {
	e.mu.Lock()
	defer e.mu.Unlock()
	bm := roaring.New()
	for slot := range e.requestors {
		bm.Add(slot)
	}
	for slot := range e.routedTo {
		bm.Add(slot)
	}
	return bm
}

// DumpInfo is a stable, lock-free snapshot of an entry for diagnostics.
type DumpInfo struct {
	Key                Key
	LastUpdateUnixNano int64
	Requestors         int
	RoutedTo           int
}

// Dump returns e's current DumpInfo.
func (e *Entry) Dump() DumpInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DumpInfo{
		Key:                e.key,
		LastUpdateUnixNano: e.lastUpdate.UnixNano(),
		Requestors:         len(e.requestors),
		RoutedTo:           len(e.routedTo),
	}
}
