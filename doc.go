// Package failuretable implements the failure table of a darknet
// content-routing node: a bounded, privacy-aware record of which peers we
// asked for a key, which peers asked us, and for how long a failure
// should suppress re-requests, together with the Ultra-Lightweight
// Persistent Request (ULPR) mechanism that turns a later discovery of the
// key into push offers to those requestors.
//
// The coordinator (FailureTable) owns two bounded LRU indices - failed-key
// entries and received offers - and two execution contexts: a
// single-threaded serial queue for offer validation and datastore lookups,
// and a worker pool for outbound block transfers. See SPEC_FULL.md for the
// full module map and DESIGN.md for the grounding of each piece in the
// reference client it's modeled on.
package failuretable

import "github.com/freenet-go/failuretable/ftkey"

// Key re-exports ftkey.Key so callers only need to import this package
// for the common case.
type Key = ftkey.Key

const (
	CHK = ftkey.CHK
	SSK = ftkey.SSK
)
