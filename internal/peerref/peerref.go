// Package peerref models the failure table's references to peers as weak
// handles: the table never extends a peer's lifetime, it only remembers
// enough to ask the owning peer table "is this still the same peer, and is
// it still around".
package peerref

// Peer is the narrow view the failure table needs of a peer object owned
// by the (out-of-scope) peer table.
type Peer interface {
	// Identity returns the peer's stable identity bytes, used as HMAC
	// authenticator material. It must not change across reconnects of the
	// same peer, but does change across a full restart (see BootID).
	Identity() []byte
	// BootID is a monotonically increasing counter that changes whenever
	// the peer's process restarts. Offers reference the boot ID observed
	// at offer time so a later resolve can detect a restarted peer.
	BootID() uint64
	// Send transmits a message to the peer. It returns a non-nil error if
	// the peer is no longer connected; callers treat this as best-effort
	// and do not retry here.
	Send(msg any) error
}

// Table resolves a Handle's slot to a live Peer. It is implemented by the
// peer table, which owns peer lifetime; the failure table never holds a
// strong reference across this boundary.
type Table interface {
	Peer(slot uint32) (Peer, bool)
}

// Handle is a weak reference to a peer: a slot id plus the boot id
// observed when the handle was recorded. Resolving a Handle whose boot id
// no longer matches the live peer is treated identically to "peer gone" -
// the peer that answers at that slot today is not the one this handle was
// made for.
type Handle struct {
	Slot   uint32
	BootID uint64
}

// Resolve looks the handle up in table. It returns (nil, false) if the
// slot is empty, or if the slot holds a peer whose current boot id does
// not match the handle's recorded boot id (the original peer restarted or
// the slot was reused).
func (h Handle) Resolve(table Table) (Peer, bool) {
	if table == nil {
		return nil, false
	}
	p, ok := table.Peer(h.Slot)
	if !ok {
		return nil, false
	}
	if p.BootID() != h.BootID {
		return nil, false
	}
	return p, true
}

// For builds a Handle recording p's current slot and boot id.
func For(slot uint32, p Peer) Handle {
	return Handle{Slot: slot, BootID: p.BootID()}
}
