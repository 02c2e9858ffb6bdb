// Package authtoken computes and verifies the HMAC authenticator that
// binds an outgoing offer to (key, peer, process instance). A stolen
// authenticator is useless against other peers or a node that has since
// restarted, because it is scoped to the peer's identity bytes and the
// authenticator key is regenerated every process start.
//
// This is one of the two places in the module (with internal/lru) that
// stay on the standard library by design: none of the pack's dependencies provide a keyed-MAC primitive,
// and HMAC's integrity guarantee (not confidentiality - spec.md explicitly
// scopes this out) is exactly what crypto/hmac is for.
package authtoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"github.com/freenet-go/failuretable/ftkey"
)

// Size is the authenticator length in bytes.
const Size = 32

// Key is a process-local HMAC key, immutable after generation and freely
// readable from any goroutine.
type Key [Size]byte

// Generate returns a fresh, random authenticator key, suitable for use
// once per process lifetime.
func Generate() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Compute returns HMAC(key, k.Bytes || k.Kind || peerIdentity).
func Compute(key Key, k ftkey.Key, peerIdentity []byte) [Size]byte {
	h := hmac.New(sha256.New, key[:])
	h.Write(k.Bytes[:])
	h.Write([]byte{byte(k.Kind)})
	h.Write(peerIdentity)
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether authenticator was produced by Compute for the
// same (key, k, peerIdentity) triple, in constant time.
func Verify(key Key, k ftkey.Key, peerIdentity []byte, authenticator [Size]byte) bool {
	expected := Compute(key, k, peerIdentity)
	return hmac.Equal(expected[:], authenticator[:])
}
