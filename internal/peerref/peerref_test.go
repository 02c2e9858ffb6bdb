package peerref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPeer struct {
	identity []byte
	bootID   uint64
}

func (p *stubPeer) Identity() []byte   { return p.identity }
func (p *stubPeer) BootID() uint64     { return p.bootID }
func (p *stubPeer) Send(msg any) error { return nil }

type stubTable map[uint32]*stubPeer

func (t stubTable) Peer(slot uint32) (Peer, bool) {
	p, ok := t[slot]
	if !ok {
		return nil, false
	}
	return p, true
}

func TestResolveSucceedsWhenBootIDMatches(t *testing.T) {
	table := stubTable{1: {identity: []byte("a"), bootID: 5}}
	h := Handle{Slot: 1, BootID: 5}

	p, ok := h.Resolve(table)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), p.Identity())
}

func TestResolveFailsOnBootIDMismatch(t *testing.T) {
	table := stubTable{1: {identity: []byte("a"), bootID: 9}}
	h := Handle{Slot: 1, BootID: 5}

	_, ok := h.Resolve(table)
	assert.False(t, ok, "a restarted peer at the same slot must not resolve")
}

func TestResolveFailsOnEmptySlot(t *testing.T) {
	table := stubTable{}
	h := Handle{Slot: 1, BootID: 5}

	_, ok := h.Resolve(table)
	assert.False(t, ok)
}

func TestResolveFailsOnNilTable(t *testing.T) {
	h := Handle{Slot: 1, BootID: 5}
	_, ok := h.Resolve(nil)
	assert.False(t, ok)
}

func TestForCapturesCurrentBootID(t *testing.T) {
	p := &stubPeer{identity: []byte("a"), bootID: 42}
	h := For(3, p)
	assert.Equal(t, Handle{Slot: 3, BootID: 42}, h)
}
