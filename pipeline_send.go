package failuretable

import (
	"context"

	"github.com/anacrolix/log"

	"github.com/freenet-go/failuretable/internal/peerref"
)

// SendOfferedKey responds to a peer that wants to download a key we
// previously offered (spec.md section 4.1/section 4.4). All work is handed to the
// serial queue so the calling (transport) goroutine never blocks on
// datastore I/O; the pipeline itself is responsible for releasing uid on
// every exit path.
func (ft *FailureTable) SendOfferedKey(key Key, isSSK, needPubKey bool, uid uint64, source peerref.Handle) {
	ft.submitSerial(func() {
		ft.serveOfferedKey(key, isSSK, needPubKey, uid, source)
	})
}

// serveOfferedKey runs on the serial queue. It releases uid exactly once
// on every path: immediately for a datastore miss or a panic in this
// task, or handed off to whichever worker performs the actual
// (potentially slow) send.
func (ft *FailureTable) serveOfferedKey(key Key, isSSK, needPubKey bool, uid uint64, source peerref.Handle) {
	release := ft.releaseOnce(uid)
	defer func() {
		if r := recover(); r != nil {
			release()
			panic(r)
		}
	}()

	peer, ok := source.Resolve(ft.deps.PeerTable)
	if !ok {
		release()
		return
	}

	if isSSK {
		ft.serveSSK(key, needPubKey, uid, peer, release)
		return
	}
	ft.serveCHK(key, uid, peer, release)
}

// releaseOnce returns a release function that calls UIDs.ReleaseUID at
// most once, so handing the same release to both a synchronous error
// path and an asynchronous worker can never double-release or leak
// (spec.md section 8 invariant 7).
func (ft *FailureTable) releaseOnce(uid uint64) func() {
	var released bool
	return func() {
		if released {
			return
		}
		released = true
		if ft.deps.UIDs != nil {
			ft.deps.UIDs.ReleaseUID(uid)
		}
		ft.stats.uidsReleased.Add(1)
		if ft.deps.Metrics != nil {
			ft.deps.Metrics.UIDsReleased.Inc()
		}
	}
}

func (ft *FailureTable) serveSSK(key Key, needPubKey bool, uid uint64, peer peerref.Peer, release func()) {
	headers, data, ok := ft.deps.Datastore.FetchSSK(key)
	if !ok {
		ft.deps.Transport.SendGetOfferedKeyInvalid(uid, RejectNoKey)
		release()
		return
	}
	if err := ft.deps.Transport.SendSSKHeaders(uid, headers); err != nil {
		ft.logger.WithDefaultLevel(log.Debug).Printf("send SSK headers uid=%d: %v", uid, err)
		release()
		return
	}

	// Data (and the optional legacy/pubkey follow-ups) are dispatched to
	// the general executor: this may block on network congestion and must
	// not run on the serial queue (spec.md section 4.4/section 5).
	ft.general.Submit(func() {
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), ft.cfg.TransferTimeout)
		defer cancel()
		if err := ft.general.ThrottledSend(ctx, PacketSize, data, func(chunk []byte) error {
			return ft.deps.Transport.SendSSKData(uid, chunk)
		}); err != nil {
			ft.logger.WithDefaultLevel(log.Debug).Printf("send SSK data uid=%d: %v", uid, err)
			return
		}

		// Wire-compatibility order preserved per spec.md section 9: headers,
		// then data, then the optional legacy combined message, then the
		// optional trailing pubkey message.
		if ft.cfg.LegacySSKCombined {
			if err := ft.deps.Transport.SendSSKDataFoundLegacy(uid, headers, data); err != nil {
				ft.logger.WithDefaultLevel(log.Debug).Printf("send legacy SSK data-found uid=%d: %v", uid, err)
			}
		}
		if needPubKey {
			pubKey, ok := ft.deps.Datastore.FetchSSKPubKey(key)
			if ok {
				if err := ft.deps.Transport.SendSSKPubKey(uid, pubKey); err != nil {
					ft.logger.WithDefaultLevel(log.Debug).Printf("send SSK pubkey uid=%d: %v", uid, err)
				}
			}
		}
	})
}

func (ft *FailureTable) serveCHK(key Key, uid uint64, peer peerref.Peer, release func()) {
	headers, block, ok := ft.deps.Datastore.FetchCHK(key)
	if !ok {
		ft.deps.Transport.SendGetOfferedKeyInvalid(uid, RejectNoKey)
		release()
		return
	}
	if err := ft.deps.Transport.SendCHKHeaders(uid, headers); err != nil {
		ft.logger.WithDefaultLevel(log.Debug).Printf("send CHK headers uid=%d: %v", uid, err)
		release()
		return
	}

	ft.general.Submit(func() {
		defer release()
		if ft.deps.BlockTransmitter == nil {
			return
		}
		if err := ft.deps.BlockTransmitter.Transmit(peer, block); err != nil {
			ft.logger.WithDefaultLevel(log.Debug).Printf("transmit CHK block uid=%d: %v", uid, err)
		}
	})
}
