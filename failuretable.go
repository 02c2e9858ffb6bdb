package failuretable

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/log"
	g "github.com/anacrolix/generics"
	"github.com/anacrolix/multiless"
	"golang.org/x/time/rate"

	"github.com/freenet-go/failuretable/config"
	"github.com/freenet-go/failuretable/ftkey"
	"github.com/freenet-go/failuretable/ftlog"
	"github.com/freenet-go/failuretable/ftmetrics"
	"github.com/freenet-go/failuretable/internal/authtoken"
	"github.com/freenet-go/failuretable/internal/ftsync"
	"github.com/freenet-go/failuretable/internal/lru"
	"github.com/freenet-go/failuretable/internal/offer"
	"github.com/freenet-go/failuretable/internal/peerref"
	"github.com/freenet-go/failuretable/internal/pipeline"
)

// Deps bundles the failure table's out-of-scope collaborators: transport,
// datastore, peer table, client queue, and block transmitter. None of
// these are owned by FailureTable (spec.md section 1/section 3 ownership rules).
type Deps struct {
	PeerTable        peerref.Table
	Datastore        Datastore
	Transport        Transport
	UIDs             UIDReleaser
	ClientQueue      ClientQueue
	BlockTransmitter BlockTransmitter
	Logger           log.Logger
	Metrics          *ftmetrics.Metrics
	Rand             *rand.Rand
}

// FailureTable is the coordinator described in spec.md section 4.1: it owns two
// bounded LRU indices (entries, offers), a process-local HMAC
// authenticator key, and the offer serial/general pipelines.
type FailureTable struct {
	mu      ftsync.Mutex
	entries *lru.Index[ftkey.Key, *Entry]
	offers  *lru.Index[ftkey.Key, *offer.Set]

	authKey authtoken.Key
	cfg     config.Config
	deps    Deps
	rng     *rand.Rand

	serial  *pipeline.Serial
	general *pipeline.General

	// referencedSlots is a cheap, append-only superset of peer slots
	// referenced by any entry. It only grows between Cleaner sweeps
	// (which rebuild it exactly), so a negative Contains check is always
	// trustworthy; a positive one just means "maybe, go check for real".
	// on_disconnect uses it to skip the entries scan for a peer that was
	// never recorded anywhere.
	referencedSlots *roaring.Bitmap

	logger log.Logger
	stats  Stats
}

// New constructs a FailureTable. The authenticator key is generated
// fresh; it is never persisted (spec.md section 6 "Persisted state: none").
func New(cfg config.Config, deps Deps) (*FailureTable, error) {
	authKey, err := authtoken.Generate()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0xb16b00b5))
	}

	ft := &FailureTable{
		entries:         lru.New[ftkey.Key, *Entry](cfg.MaxEntries),
		offers:          lru.New[ftkey.Key, *offer.Set](cfg.MaxOffers),
		authKey:         authKey,
		cfg:             cfg,
		deps:            deps,
		rng:             rng,
		referencedSlots: roaring.New(),
		logger:          logger,
	}
	ft.serial = pipeline.NewSerial(logger.WithNames("offer-serial"))
	ft.general = pipeline.NewGeneral(cfg.GeneralWorkers, throttleLimit(cfg.ThrottleBytesPerSecond), logger.WithNames("offer-general"))
	if deps.Metrics != nil {
		ft.updateSizeGauges()
	}
	return ft, nil
}

// Close stops the offer pipelines, letting already-queued work finish.
func (ft *FailureTable) Close() error {
	ft.serial.Close()
	return ft.general.Close()
}

// Stats returns a point-in-time snapshot of the table's counters.
func (ft *FailureTable) Stats() Snapshot { return ft.stats.Snapshot() }

func (ft *FailureTable) updateSizeGauges() {
	if ft.deps.Metrics == nil {
		return
	}
	ft.deps.Metrics.EntriesSize.Set(float64(ft.entries.Len()))
	ft.deps.Metrics.OffersSize.Set(float64(ft.offers.Len()))
}

// OnFailed records that routing key to routedTo failed but the request
// continues (spec.md section 4.1 on_failed).
func (ft *FailureTable) OnFailed(key Key, routedTo peerref.Handle, htl int, timeout time.Duration) {
	if !ft.recordingEnabled() {
		return
	}
	now := time.Now()
	ft.mu.Lock()
	e, ok := ft.entries.Get(key)
	if !ok {
		e = NewEntry(key, now, ftlog.ForKey(ft.logger, key.String()))
		ft.stats.entriesCreated.Add(1)
	}
	evicted := ft.entries.Push(key, e)
	ft.recordEvictions(evicted)
	ft.referencedSlots.Add(routedTo.Slot)
	ft.mu.Unlock()

	e.FailedTo(routedTo, ft.clampTimeout(timeout), now, htl)
}

// OnFinalFailure records a terminal DNF: same bookkeeping as OnFailed,
// plus recording requestor if supplied (spec.md section 4.1 on_final_failure).
// Either peer may be absent.
func (ft *FailureTable) OnFinalFailure(key Key, routedTo g.Option[peerref.Handle], htl int, timeout time.Duration, requestor g.Option[peerref.Handle]) {
	if !ft.recordingEnabled() {
		return
	}
	now := time.Now()
	ft.mu.Lock()
	e, ok := ft.entries.Get(key)
	if !ok {
		e = NewEntry(key, now, ftlog.ForKey(ft.logger, key.String()))
		ft.stats.entriesCreated.Add(1)
	}
	evicted := ft.entries.Push(key, e)
	ft.recordEvictions(evicted)
	if routedTo.Ok {
		ft.referencedSlots.Add(routedTo.Value.Slot)
	}
	if requestor.Ok {
		ft.referencedSlots.Add(requestor.Value.Slot)
	}
	ft.mu.Unlock()

	if routedTo.Ok {
		e.FailedTo(routedTo.Value, ft.clampTimeout(timeout), now, htl)
	}
	if requestor.Ok {
		e.AddRequestor(requestor.Value, now)
	}
}

// clampTimeout caps a caller-supplied suppression window at RejectTime
// (spec.md section 4.2): however long the caller thinks a failure should
// suppress re-routing to the same peer, it never outlives the table's own
// reject-time ceiling.
func (ft *FailureTable) clampTimeout(timeout time.Duration) time.Duration {
	if timeout > ft.cfg.RejectTime {
		return ft.cfg.RejectTime
	}
	return timeout
}

func (ft *FailureTable) recordEvictions(evicted []ftkey.Key) {
	if len(evicted) == 0 {
		return
	}
	ft.stats.entriesEvicted.Add(int64(len(evicted)))
	if ft.deps.Metrics != nil {
		ft.deps.Metrics.Evictions.Add(float64(len(evicted)))
	}
}

func (ft *FailureTable) recordingEnabled() bool {
	return ft.cfg.EnablePerNodeFailureTables
}

func (ft *FailureTable) ulprEnabled() bool {
	return ft.cfg.EnableULPRPropagation
}

// OnFound is called when block becomes locally available. Any entry for
// block.Key is atomically removed from both indices - a privacy
// requirement, performed unconditionally even when ULPR is disabled for
// outgoing offers (spec.md section 4.1, invariant 2). The outgoing offer fan-out
// itself only happens when ULPR propagation is enabled, and happens
// outside any lock.
func (ft *FailureTable) OnFound(block Block) {
	ft.mu.Lock()
	e, hadEntry := ft.entries.Remove(block.Key)
	_, hadOffers := ft.offers.Remove(block.Key)
	if hadOffers && ft.deps.ClientQueue != nil {
		ft.mu.Defer(func() {
			ft.deps.ClientQueue.DequeueOfferedKey(block.Key)
		})
	}
	if hadEntry && ft.ulprEnabled() {
		ft.mu.Defer(func() {
			ft.fanOutOffers(e, block.Key)
		})
	}
	ft.mu.Unlock()
}

// fanOutOffers sends block offers to every peer e.Offer selects. Always
// run via Defer, after the coarse lock has been released.
func (ft *FailureTable) fanOutOffers(e *Entry, key Key) {
	if ft.deps.Transport == nil {
		return
	}
	outgoing := e.Offer(ft.authKey, ft.deps.PeerTable)
	for _, o := range outgoing {
		p, ok := o.Peer.Resolve(ft.deps.PeerTable)
		if !ok {
			continue
		}
		if err := ft.deps.Transport.SendBlockOffer(p, key, o.Authenticator); err != nil {
			ft.logger.WithDefaultLevel(log.Debug).Printf("offer send to %v failed: %v", o.Peer, err)
		}
	}
}

// OnOffer is the fast-path check for an inbound offer notification: if no
// Entry exists for key, we never asked, so the offer is dropped silently
// without touching the serial queue. Otherwise, full validation is
// handed off to the serial pipeline so transport threads never block on
// disk I/O (spec.md section 4.1 on_offer).
func (ft *FailureTable) OnOffer(key Key, peer peerref.Handle, authenticator [authtoken.Size]byte) {
	if !ft.ulprEnabled() {
		return
	}
	ft.mu.Lock()
	_, ok := ft.entries.Get(key)
	ft.mu.Unlock()
	if !ok {
		return
	}
	ft.submitSerial(func() {
		ft.acceptOffer(key, peer, authenticator)
	})
}

// submitSerial runs task on the offer serial queue, timing it into
// PipelineTook so operators can see how long serial-pipeline work (offer
// acceptance, offered-key service) takes end to end.
func (ft *FailureTable) submitSerial(task func()) {
	ft.serial.Submit(func() {
		start := time.Now()
		task()
		if ft.deps.Metrics != nil {
			ft.deps.Metrics.PipelineTook.Observe(time.Since(start).Seconds())
		}
	})
}

// acceptOffer implements the policy in spec.md section 4.3, run on the serial
// queue.
func (ft *FailureTable) acceptOffer(key Key, peer peerref.Handle, authenticator [authtoken.Size]byte) {
	if ft.deps.Datastore != nil && ft.deps.Datastore.HasKey(key) {
		return
	}
	ft.mu.Lock()
	e, ok := ft.entries.Get(key)
	ft.mu.Unlock()
	if !ok {
		return
	}

	weAsked := e.AskedFromPeer(peer)
	heAsked := e.AskedByPeer(peer)
	accept := weAsked || (key.IsCHK() && heAsked)
	if !accept {
		ft.stats.offersRejected.Add(1)
		if ft.deps.Metrics != nil {
			ft.deps.Metrics.OffersReject.Inc()
		}
		if e.IsEmpty(time.Now(), ft.cfg.MaxLifetime) {
			ft.mu.Lock()
			ft.entries.Remove(key)
			ft.mu.Unlock()
		}
		return
	}

	rec := offer.Record{
		OfferedTime:   time.Now(),
		Peer:          peer,
		Authenticator: authenticator,
		BootID:        peer.BootID,
	}

	ft.mu.Lock()
	set, ok := ft.offers.Get(key)
	if !ok {
		set = offer.NewSet()
	}
	evicted := ft.offers.Push(key, set)
	ft.mu.Unlock()
	if len(evicted) > 0 {
		ft.stats.offersEvicted.Add(int64(len(evicted)))
		if ft.deps.Metrics != nil {
			ft.deps.Metrics.Evictions.Add(float64(len(evicted)))
		}
	}

	set.Append(rec)

	ft.stats.offersAccepted.Add(1)
	if ft.deps.Metrics != nil {
		ft.deps.Metrics.OffersAccept.Inc()
		ft.updateSizeGauges()
	}

	others := e.OthersWant(peer, true)
	if ft.deps.ClientQueue != nil {
		ft.mu.Lock()
		ft.mu.Defer(func() {
			ft.deps.ClientQueue.MaybeQueueOfferedKey(key, others)
		})
		ft.mu.Unlock()
	}
}

// GetOffers returns an iterator over current offers for key, or nil if
// there are none or ULPR is disabled.
func (ft *FailureTable) GetOffers(key Key) *offer.Iterator {
	if !ft.ulprEnabled() {
		return nil
	}
	ft.mu.Lock()
	set, ok := ft.offers.Get(key)
	ft.mu.Unlock()
	if !ok {
		return nil
	}
	return offer.NewIterator(set, ft.rng, ft.cfg.OfferExpiry, time.Now())
}

// PeersWantKey reports whether any recorded requestor is still
// interested in key.
func (ft *FailureTable) PeersWantKey(key Key) bool {
	ft.mu.Lock()
	e, ok := ft.entries.Get(key)
	ft.mu.Unlock()
	if !ok {
		return false
	}
	return e.OthersWant(peerref.Handle{}, false)
}

// TimedOutNodes is a read-only view of an Entry's routed-to timeouts, for
// the routing layer to avoid re-routing to peers whose timeout hasn't
// elapsed.
type TimedOutNodes struct {
	entry *Entry
}

// TimeoutFor returns peer's recorded timeout deadline, if any.
func (v TimedOutNodes) TimeoutFor(peer peerref.Handle) (time.Time, bool) {
	if v.entry == nil {
		return time.Time{}, false
	}
	return v.entry.TimeoutFor(peer)
}

// TimedOutNodesList exposes key's Entry as a TimedOutNodes view, gated by
// EnablePerNodeFailureTables per spec.md section 6.
func (ft *FailureTable) TimedOutNodesList(key Key) TimedOutNodes {
	if !ft.recordingEnabled() {
		return TimedOutNodes{}
	}
	ft.mu.Lock()
	e, _ := ft.entries.Get(key)
	ft.mu.Unlock()
	return TimedOutNodes{entry: e}
}

// OnDisconnect proactively prunes peer from every tracked entry. The
// reference implementation leaves this as a documented no-op; this
// SPEC_FULL supplement performs the prune rather than waiting for the
// next cleanup sweep to notice Resolve failing (spec.md section 9).
func (ft *FailureTable) OnDisconnect(peer peerref.Handle) {
	ft.mu.Lock()
	maybeReferenced := ft.referencedSlots.Contains(peer.Slot)
	entries := ft.entries.Values()
	ft.mu.Unlock()
	if !maybeReferenced {
		return
	}
	for _, e := range entries {
		e.RemovePeer(peer.Slot)
	}
}

// DebugSnapshot returns every live entry's diagnostic info in a stable,
// deterministic order (most recently updated first, ties broken by
// member count descending) rather than Go's unspecified map iteration
// order. Intended for operational tooling, not the routing hot path.
func (ft *FailureTable) DebugSnapshot() []DumpInfo {
	ft.mu.Lock()
	values := ft.entries.Values()
	ft.mu.Unlock()

	out := make([]DumpInfo, len(values))
	for i, e := range values {
		out[i] = e.Dump()
	}
	sort.Slice(out, func(i, j int) bool {
		return compareDumpInfo(out[i], out[j]) < 0
	})
	return out
}

func compareDumpInfo(a, b DumpInfo) int {
	return multiless.New().
		Int64(b.LastUpdateUnixNano, a.LastUpdateUnixNano).
		Int64(int64(b.Requestors+b.RoutedTo), int64(a.Requestors+a.RoutedTo)).
		OrderingInt()
}

func throttleLimit(bytesPerSecond int) rate.Limit {
	if bytesPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(bytesPerSecond)
}
