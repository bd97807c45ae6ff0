// Package simlog builds the structured logger the driver uses for
// per-event diagnostics (node joins, failed joins, skipped stores,
// search misses), readable on a terminal during a run and still
// greppable afterward. The protocol packages do not log.
package simlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded zap logger. verbose drops the level
// floor to Debug (per-hop routing detail); otherwise only Info and
// above are emitted.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.TimeKey = ""
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// Noop returns a logger that discards everything, for tests that don't
// want driver output.
func Noop() *zap.Logger {
	return zap.NewNop()
}

// ForProtocol returns a child logger tagged with the protocol name
// ("chord" or "pastry"), so multi-protocol runs stay distinguishable.
func ForProtocol(base *zap.Logger, protocol string) *zap.Logger {
	return base.With(zap.String("protocol", protocol))
}

// ForNode returns a child logger tagged with a node's ring id, for
// join/departure/repair events attributable to one participant.
func ForNode(base *zap.Logger, id uint64) *zap.Logger {
	return base.With(zap.Uint64("node", id))
}
