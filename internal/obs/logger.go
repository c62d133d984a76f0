// Package obs wires the process-wide zap logger and the prometheus
// registry. Neither is a package-level global: callers construct one at
// startup and pass it down explicitly, per SPEC_FULL.md §9's "explicit
// context, not module-level globals" rule.
package obs

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production zap logger used across the gateway.
// dev enables human-readable console output instead of JSON, for local runs.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// MustNewLogger builds a logger or exits the process; used only from main,
// before any request-serving path exists to recover gracefully.
func MustNewLogger(dev bool) *zap.Logger {
	logger, err := NewLogger(dev)
	if err != nil {
		os.Exit(1)
	}
	return logger
}
