package failuretable

import (
	"sync"

	"github.com/freenet-go/failuretable/internal/peerref"
)

type fakePeer struct {
	identity []byte
	bootID   uint64
	sent     []any
	mu       sync.Mutex
}

func (p *fakePeer) Identity() []byte { return p.identity }
func (p *fakePeer) BootID() uint64   { return p.bootID }
func (p *fakePeer) Send(msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

type fakePeerTable struct {
	mu    sync.Mutex
	peers map[uint32]*fakePeer
}

func newFakePeerTable() *fakePeerTable {
	return &fakePeerTable{peers: make(map[uint32]*fakePeer)}
}

func (t *fakePeerTable) add(slot uint32, identity string, bootID uint64) peerref.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[slot] = &fakePeer{identity: []byte(identity), bootID: bootID}
	return peerref.Handle{Slot: slot, BootID: bootID}
}

func (t *fakePeerTable) remove(slot uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, slot)
}

func (t *fakePeerTable) Peer(slot uint32) (peerref.Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[slot]
	return p, ok
}

type fakeDatastore struct {
	mu   sync.Mutex
	keys map[Key]bool
}

func newFakeDatastore() *fakeDatastore {
	return &fakeDatastore{keys: make(map[Key]bool)}
}

func (d *fakeDatastore) insert(k Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[k] = true
}

func (d *fakeDatastore) HasKey(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[k]
}

func (d *fakeDatastore) FetchSSK(k Key) (headers, data []byte, ok bool) {
	if !d.HasKey(k) {
		return nil, nil, false
	}
	return []byte("ssk-headers"), []byte("ssk-data"), true
}

func (d *fakeDatastore) FetchSSKPubKey(k Key) ([]byte, bool) {
	return []byte("pubkey"), true
}

func (d *fakeDatastore) FetchCHK(k Key) (headers []byte, data BlockData, ok bool) {
	if !d.HasKey(k) {
		return nil, nil, false
	}
	return []byte("chk-headers"), []byte("chk-data"), true
}

type sentBlockOffer struct {
	peer          peerref.Peer
	key           Key
	authenticator [32]byte
}

type fakeTransport struct {
	mu             sync.Mutex
	offers         []sentBlockOffer
	invalid        []uint64
	sskHeaders     []uint64
	sskData        [][]byte
	chkHeaders     []uint64
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (t *fakeTransport) SendGetOfferedKeyInvalid(uid uint64, reason RejectReason) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invalid = append(t.invalid, uid)
	return nil
}
func (t *fakeTransport) SendSSKHeaders(uid uint64, headers []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sskHeaders = append(t.sskHeaders, uid)
	return nil
}
func (t *fakeTransport) SendSSKData(uid uint64, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sskData = append(t.sskData, data)
	return nil
}
func (t *fakeTransport) SendSSKPubKey(uid uint64, pubKey []byte) error { return nil }
func (t *fakeTransport) SendSSKDataFoundLegacy(uid uint64, headers, data []byte) error {
	return nil
}
func (t *fakeTransport) SendCHKHeaders(uid uint64, headers []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chkHeaders = append(t.chkHeaders, uid)
	return nil
}
func (t *fakeTransport) SendBlockOffer(peer peerref.Peer, key Key, authenticator [32]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offers = append(t.offers, sentBlockOffer{peer: peer, key: key, authenticator: authenticator})
	return nil
}

type fakeUIDs struct {
	mu       sync.Mutex
	released []uint64
}

func (u *fakeUIDs) ReleaseUID(uid uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.released = append(u.released, uid)
}

type fakeClientQueue struct {
	mu       sync.Mutex
	queued   []Key
	dequeued []Key
}

func (c *fakeClientQueue) MaybeQueueOfferedKey(key Key, othersWant bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = append(c.queued, key)
}
func (c *fakeClientQueue) DequeueOfferedKey(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dequeued = append(c.dequeued, key)
}

type fakeBlockTransmitter struct {
	mu   sync.Mutex
	sent int
}

func (b *fakeBlockTransmitter) Transmit(peer peerref.Peer, data BlockData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent++
	return nil
}
