// Package ftlog is a thin naming layer over github.com/anacrolix/log,
// the logging library used throughout the reference client (see peer.go's
// embedded log.Logger fields). It exists only so the rest of this module
// imports one local package instead of sprinkling anacrolix/log names
// everywhere, matching how the reference client scopes loggers per
// connection.
package ftlog

import "github.com/anacrolix/log"

// Named derives a sub-logger scoped to name from the default logger, the
// way peer connections derive theirs from the client's logger.
func Named(name string) log.Logger {
	return log.Default.WithNames(name)
}

// ForKey derives a sub-logger scoped to a specific key's short string
// form, for per-entry/per-offer-set diagnostics.
func ForKey(parent log.Logger, keyString string) log.Logger {
	return parent.WithNames(keyString)
}
