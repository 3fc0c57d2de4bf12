// Package logging builds the zap logger shared by the CLI and its components.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/r3d91ll/chime/pkg/errors"
)

// Config selects the logger's level, encoder and sinks.
type Config struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level" json:"level"`

	// Development switches to the console encoder with caller and stack traces.
	Development bool `yaml:"development" json:"development"`

	// OutputPaths are zap sink URLs; empty means stderr.
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
}

// Default returns an info-level production logger config writing to stderr.
func Default() Config {
	return Config{Level: "info", OutputPaths: []string{"stderr"}}
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return lvl, errors.ConfigErrorf(errors.ErrConfigInvalid, "invalid log level %q", s).
			WithContext("field", "logging.level").
			WithSuggestion("Use one of: debug, info, warn, error")
	}
	return lvl, nil
}

// New builds a logger. Verbose forces debug level regardless of cfg.Level.
func New(cfg Config, verbose bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrConfigInvalid, "failed to initialize logger")
	}
	return logger, nil
}
