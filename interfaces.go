package failuretable

import (
	"github.com/freenet-go/failuretable/internal/peerref"
)

// Block is a block that became locally available, as reported by the
// datastore/client layer to on_found.
type Block struct {
	Key     Key
	Headers []byte
	Data    BlockData
}

// BlockData is the raw payload handed to a BlockTransmitter for CHK
// packetisation. It's opaque here: this subsystem never interprets block
// contents, only routes them (spec.md section 1 scope).
type BlockData interface{}

// Datastore is the narrow view of the out-of-scope datastore this
// subsystem needs: existence checks and the two key-type fetch paths
// used by the offer serve pipeline (spec.md section 4.4).
type Datastore interface {
	HasKey(key Key) bool
	FetchSSK(key Key) (headers, data []byte, ok bool)
	FetchSSKPubKey(key Key) (pubKey []byte, ok bool)
	FetchCHK(key Key) (headers []byte, data BlockData, ok bool)
}

// RejectReason is the wire reason code carried by
// FNPGetOfferedKeyInvalid.
type RejectReason string

const RejectNoKey RejectReason = "GET_OFFERED_KEY_REJECTED_NO_KEY"

// Transport is the narrow view of the out-of-scope transport/messaging
// layer: the wire messages named in spec.md section 6.
type Transport interface {
	SendGetOfferedKeyInvalid(uid uint64, reason RejectReason) error
	SendSSKHeaders(uid uint64, headers []byte) error
	SendSSKData(uid uint64, data []byte) error
	SendSSKPubKey(uid uint64, pubKey []byte) error
	SendSSKDataFoundLegacy(uid uint64, headers, data []byte) error
	SendCHKHeaders(uid uint64, headers []byte) error
	SendBlockOffer(peer peerref.Peer, key Key, authenticator [32]byte) error
}

// UIDReleaser releases a transaction slot. It must be called exactly once
// for every send_offered_key call that returns without leaking the slot
// (spec.md section 4.4/section 8 invariant 7).
type UIDReleaser interface {
	ReleaseUID(uid uint64)
}

// BlockTransmitter drives CHK packet transmission: packetisation into
// fixed-size packets is the transmitter's concern, not this subsystem's
// (spec.md section 4.4).
type BlockTransmitter interface {
	Transmit(peer peerref.Peer, data BlockData) error
}

// ClientQueue is the narrow view of the client-facing request queue.
type ClientQueue interface {
	MaybeQueueOfferedKey(key Key, othersWant bool)
	DequeueOfferedKey(key Key)
}

// Wire packet sizing, carried from spec.md section 4.4/section 6 for documentation and
// for callers constructing a BlockTransmitter implementation.
const (
	PacketSize      = 1024
	PacketsInBlock  = 32
	ChkBlockBytes   = PacketSize * PacketsInBlock
)
