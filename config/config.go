// Package config holds the failure table's tunables and feature flags,
// populated with functional options the way the reference client config
// is built up (see peer.go's pc.t.cl.config for the pattern this
// follows).
package config

import "time"

// Config holds every tunable named in spec.md section 3/section 4.2/section 6. Zero value is
// not meaningful; always construct via New, which applies defaults
// first.
type Config struct {
	// EnableULPRPropagation gates on_found's outgoing offers, on_offer
	// acceptance, and get_offers (spec.md section 6).
	EnableULPRPropagation bool
	// EnablePerNodeFailureTables gates on_failed/on_final_failure
	// recording and timed_out_nodes_list (spec.md section 6).
	EnablePerNodeFailureTables bool

	MaxEntries int
	MaxOffers  int

	RejectTime    time.Duration
	MaxLifetime   time.Duration
	OfferExpiry   time.Duration
	CleanupPeriod time.Duration

	// TransferTimeout bounds the throttled SSK data send of a single
	// offered-key response (spec.md section 4.4); the CHK BlockTransmitter
	// call is not bounded by it.
	TransferTimeout time.Duration
	// GeneralWorkers sizes the outbound-transfer worker pool.
	GeneralWorkers int
	// ThrottleBytesPerSecond bounds the aggregate outbound offered-key
	// send rate; 0 means unlimited.
	ThrottleBytesPerSecond int

	// LegacySSKCombined controls whether the backward-compatible combined
	// FNPSSKDataFound message is also sent after FNPSSKDataFoundHeaders/
	// FNPSSKDataFoundData (spec.md section 4.4 wire-compat note).
	LegacySSKCombined bool
}

// Default returns the constants named in spec.md section 4.2.
func Default() Config {
	return Config{
		EnableULPRPropagation:      true,
		EnablePerNodeFailureTables: true,
		MaxEntries:                 2000,
		MaxOffers:                  1000,
		RejectTime:                 10 * time.Minute,
		MaxLifetime:                60 * time.Minute,
		OfferExpiry:                10 * time.Minute,
		CleanupPeriod:              30 * time.Minute,
		TransferTimeout:            60 * time.Second,
		GeneralWorkers:             4,
		ThrottleBytesPerSecond:     0,
		LegacySSKCombined:          true,
	}
}

// Option mutates a Config being built by New.
type Option func(*Config)

// New applies defaults, then opts in order.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func WithULPRPropagation(enabled bool) Option {
	return func(c *Config) { c.EnableULPRPropagation = enabled }
}

func WithPerNodeFailureTables(enabled bool) Option {
	return func(c *Config) { c.EnablePerNodeFailureTables = enabled }
}

func WithMaxEntries(n int) Option { return func(c *Config) { c.MaxEntries = n } }
func WithMaxOffers(n int) Option  { return func(c *Config) { c.MaxOffers = n } }

func WithRejectTime(d time.Duration) Option    { return func(c *Config) { c.RejectTime = d } }
func WithMaxLifetime(d time.Duration) Option   { return func(c *Config) { c.MaxLifetime = d } }
func WithOfferExpiry(d time.Duration) Option   { return func(c *Config) { c.OfferExpiry = d } }
func WithCleanupPeriod(d time.Duration) Option { return func(c *Config) { c.CleanupPeriod = d } }

func WithTransferTimeout(d time.Duration) Option {
	return func(c *Config) { c.TransferTimeout = d }
}
func WithGeneralWorkers(n int) Option { return func(c *Config) { c.GeneralWorkers = n } }
func WithThrottleBytesPerSecond(n int) Option {
	return func(c *Config) { c.ThrottleBytesPerSecond = n }
}
func WithLegacySSKCombined(enabled bool) Option {
	return func(c *Config) { c.LegacySSKCombined = enabled }
}
