// Package logging builds the zap loggers used across normcheck. Library
// components accept a *zap.Logger and default to a nop logger; the CLI wires
// a real one in here.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger, at debug level when verbose is set.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// Nop returns a no-op logger for library callers that do not care.
func Nop() *zap.Logger { return zap.NewNop() }
