// Command failuretable-bench drives synthetic on_failed/on_offer/on_found
// traffic against a FailureTable, for load-testing the coarse lock and
// the two execution pipelines without a real darknet node attached.
package main

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	failuretable "github.com/freenet-go/failuretable"
	"github.com/freenet-go/failuretable/config"
	"github.com/freenet-go/failuretable/ftkey"
	"github.com/freenet-go/failuretable/ftmetrics"
	"github.com/freenet-go/failuretable/internal/peerref"
)

type args struct {
	Peers        int           `arg:"--peers" default:"64" help:"number of synthetic peers"`
	Keys         int           `arg:"--keys" default:"5000" help:"number of distinct content keys to cycle through"`
	Duration     time.Duration `arg:"--duration" default:"10s" help:"how long to generate traffic"`
	OffersPerSec int           `arg:"--offers-per-sec" default:"200" help:"synthetic on_offer calls per second"`
	FailsPerSec  int           `arg:"--fails-per-sec" default:"500" help:"synthetic on_failed calls per second"`
	FoundsPerSec int           `arg:"--founds-per-sec" default:"20" help:"synthetic on_found calls per second"`
	Seed         uint64        `arg:"--seed" default:"1" help:"deterministic RNG seed"`
}

func (args) Description() string {
	return "Generates synthetic ULPR traffic against an in-process FailureTable and prints its counters once a second and at the end."
}

type benchPeer struct {
	identity []byte
	bootID   uint64
}

func (p *benchPeer) Identity() []byte   { return p.identity }
func (p *benchPeer) BootID() uint64     { return p.bootID }
func (p *benchPeer) Send(msg any) error { return nil }

type benchPeerTable struct {
	peers []*benchPeer
}

func (t *benchPeerTable) Peer(slot uint32) (peerref.Peer, bool) {
	if int(slot) >= len(t.peers) {
		return nil, false
	}
	return t.peers[slot], true
}

func (t *benchPeerTable) handle(slot uint32) peerref.Handle {
	return peerref.Handle{Slot: slot, BootID: t.peers[slot].bootID}
}

type benchDatastore struct{}

func (benchDatastore) HasKey(failuretable.Key) bool { return false }
func (benchDatastore) FetchSSK(failuretable.Key) (headers, data []byte, ok bool) {
	return nil, nil, false
}
func (benchDatastore) FetchSSKPubKey(failuretable.Key) ([]byte, bool) { return nil, false }
func (benchDatastore) FetchCHK(failuretable.Key) (headers []byte, data failuretable.BlockData, ok bool) {
	return nil, nil, false
}

type benchTransport struct {
	offersSent int
}

func (t *benchTransport) SendGetOfferedKeyInvalid(uint64, failuretable.RejectReason) error { return nil }
func (t *benchTransport) SendSSKHeaders(uint64, []byte) error                              { return nil }
func (t *benchTransport) SendSSKData(uint64, []byte) error                                 { return nil }
func (t *benchTransport) SendSSKPubKey(uint64, []byte) error                               { return nil }
func (t *benchTransport) SendSSKDataFoundLegacy(uint64, []byte, []byte) error               { return nil }
func (t *benchTransport) SendCHKHeaders(uint64, []byte) error                              { return nil }
func (t *benchTransport) SendBlockOffer(peerref.Peer, failuretable.Key, [32]byte) error {
	t.offersSent++
	return nil
}

type benchClientQueue struct {
	queued int
}

func (c *benchClientQueue) MaybeQueueOfferedKey(failuretable.Key, bool) { c.queued++ }
func (c *benchClientQueue) DequeueOfferedKey(failuretable.Key)          {}

type benchUIDs struct{}

func (benchUIDs) ReleaseUID(uint64) {}

func main() {
	var a args
	arg.MustParse(&a)

	rng := rand.New(rand.NewPCG(a.Seed, a.Seed^0x9e3779b97f4a7c15))

	peers := make([]*benchPeer, a.Peers)
	for i := range peers {
		id, err := uuid.NewRandom()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generating peer identity:", err)
			os.Exit(1)
		}
		peers[i] = &benchPeer{identity: []byte(id.String()), bootID: 1}
	}
	peerTable := &benchPeerTable{peers: peers}

	keys := make([]failuretable.Key, a.Keys)
	for i := range keys {
		var b [32]byte
		for j := 0; j < len(b); j += 8 {
			binary.LittleEndian.PutUint64(b[j:], rng.Uint64())
		}
		kind := ftkey.CHK
		if i%3 == 0 {
			kind = ftkey.SSK
		}
		keys[i] = ftkey.New(kind, b)
	}

	transport := &benchTransport{}
	clientQueue := &benchClientQueue{}
	metrics := ftmetrics.NewMetrics()

	ft, err := failuretable.New(config.Default(), failuretable.Deps{
		PeerTable:   peerTable,
		Datastore:   benchDatastore{},
		Transport:   transport,
		UIDs:        benchUIDs{},
		ClientQueue: clientQueue,
		Metrics:     metrics,
		Logger:      log.Default,
		Rand:        rng,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "constructing failure table:", err)
		os.Exit(1)
	}
	defer ft.Close()

	cleaner := failuretable.StartCleaner(ft)
	defer cleaner.Stop()

	deadline := time.Now().Add(a.Duration)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	failInterval := rateInterval(a.FailsPerSec)
	offerInterval := rateInterval(a.OffersPerSec)
	foundInterval := rateInterval(a.FoundsPerSec)

	failTick := time.NewTicker(failInterval)
	offerTick := time.NewTicker(offerInterval)
	foundTick := time.NewTicker(foundInterval)
	defer failTick.Stop()
	defer offerTick.Stop()
	defer foundTick.Stop()

	randKey := func() failuretable.Key { return keys[rng.IntN(len(keys))] }
	randPeerSlot := func() uint32 { return uint32(rng.IntN(len(peers))) }

	for time.Now().Before(deadline) {
		select {
		case <-failTick.C:
			ft.OnFailed(randKey(), peerTable.handle(randPeerSlot()), 10, time.Minute)
		case <-offerTick.C:
			ft.OnOffer(randKey(), peerTable.handle(randPeerSlot()), [32]byte{})
		case <-foundTick.C:
			ft.OnFound(failuretable.Block{Key: randKey()})
		case <-ticker.C:
			s := ft.Stats()
			fmt.Printf("t=%s entries_created=%s offers_accepted=%s offers_rejected=%s evictions=%s\n",
				time.Until(deadline).Round(time.Second),
				humanize.Comma(s.EntriesCreated),
				humanize.Comma(s.OffersAccepted),
				humanize.Comma(s.OffersRejected),
				humanize.Comma(s.EntriesEvicted),
			)
		}
	}

	final := ft.Stats()
	fmt.Println("final stats:")
	fmt.Printf("  entries created:  %s\n", humanize.Comma(final.EntriesCreated))
	fmt.Printf("  entries evicted:  %s\n", humanize.Comma(final.EntriesEvicted))
	fmt.Printf("  offers accepted:  %s\n", humanize.Comma(final.OffersAccepted))
	fmt.Printf("  offers rejected:  %s\n", humanize.Comma(final.OffersRejected))
	fmt.Printf("  offers expired:   %s\n", humanize.Comma(final.OffersExpired))
	fmt.Printf("  uids released:    %s\n", humanize.Comma(final.UIDsReleased))
	fmt.Printf("  block offers sent via transport: %s\n", humanize.Comma(int64(transport.offersSent)))
	fmt.Printf("  client-queue notifications:      %s\n", humanize.Comma(int64(clientQueue.queued)))
}

func rateInterval(perSecond int) time.Duration {
	if perSecond <= 0 {
		return time.Hour
	}
	return time.Second / time.Duration(perSecond)
}
