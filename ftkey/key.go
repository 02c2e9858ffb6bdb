// Package ftkey defines the content key type shared by every failure-table
// package. It is split out from the root package so that internal
// sub-packages (lru, offer, peerref, pipeline) can depend on the key type
// without importing the coordinator that depends on them.
package ftkey

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Kind distinguishes content-hash keys (content-addressed, unforgeable)
// from signed-subspace keys (owner-signed, not content-addressed).
type Kind uint8

const (
	CHK Kind = iota
	SSK
)

func (k Kind) String() string {
	if k == SSK {
		return "SSK"
	}
	return "CHK"
}

// Key is an opaque 32-byte content identifier plus its variant tag.
// Equality is defined on the full bytes and kind, so Key is safe to use
// directly as a map key.
type Key struct {
	Kind  Kind
	Bytes [32]byte
}

func New(kind Kind, b [32]byte) Key {
	return Key{Kind: kind, Bytes: b}
}

func (k Key) IsCHK() bool { return k.Kind == CHK }
func (k Key) IsSSK() bool { return k.Kind == SSK }

// Digest is a fast, non-cryptographic hash of the key's kind and bytes.
// Nothing in this module calls it; it is not suitable where
// cryptographic properties are required (see authtoken for that).
func (k Key) Digest() uint64 {
	var buf [33]byte
	buf[0] = byte(k.Kind)
	copy(buf[1:], k.Bytes[:])
	return xxhash.Sum64(buf[:])
}

// String renders a short, loggable form: kind tag plus the first four
// bytes of the key, hex-encoded. It is not a complete serialization.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, hex.EncodeToString(k.Bytes[:4]))
}
