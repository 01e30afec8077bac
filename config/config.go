// Package config loads runtime settings: built-in defaults, then an optional
// YAML file, then NOSTRWASM_* environment variables.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"go-simpler.org/env"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/nostr-wasm/errors"
)

// Backends.
const (
	BackendWasm      = "wasm"
	BackendReference = "reference"
)

// C is the runtime configuration.
type C struct {
	WasmPath         string        `yaml:"wasm_path" env:"NOSTRWASM_WASM_PATH" usage:"path or http(s) URL of the compiled module"`
	Backend          string        `yaml:"backend" env:"NOSTRWASM_BACKEND" usage:"wasm or reference"`
	Label            string        `yaml:"label" env:"NOSTRWASM_LABEL" usage:"tag for module diagnostics"`
	LogLevel         string        `yaml:"log_level" env:"NOSTRWASM_LOG_LEVEL" usage:"debug, info, warn or error"`
	Development      bool          `yaml:"development" env:"NOSTRWASM_DEVELOPMENT" usage:"human-readable logs"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages" env:"NOSTRWASM_MEMORY_LIMIT_PAGES" usage:"wasm memory limit in 64KiB pages, 0 for the module maximum"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" env:"NOSTRWASM_FETCH_TIMEOUT" usage:"timeout for fetching the module over http"`
}

// Default returns the built-in defaults.
func Default() *C {
	return &C{
		Backend:      BackendWasm,
		Label:        "nostr-wasm",
		LogLevel:     "info",
		FetchTimeout: 30 * time.Second,
	}
}

// Load reads the configuration and validates it.
func Load(path string, src env.Source) (*C, error) {
	c, err := Read(path, src)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read applies the YAML file at path (skipped when empty) and then the
// environment over the defaults, without validating. A nil src reads the
// process environment.
func Read(path string, src env.Source) (*C, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config file")
		}
		if err := c.decodeYAML(b); err != nil {
			return nil, err
		}
	}

	if err := env.Load(c, &env.Options{Source: src}); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load environment")
	}
	return c, nil
}

func (c *C) decodeYAML(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config file")
	}
	return nil
}

// Validate checks field values.
func (c *C) Validate() error {
	switch c.Backend {
	case BackendWasm:
		if c.WasmPath == "" {
			return errors.InvalidInput(errors.PhaseConfig, "backend", "wasm backend requires wasm_path")
		}
	case BackendReference:
	default:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Op("backend").
			Value(c.Backend).
			Detail("unknown backend %q", c.Backend).
			Build()
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	if c.FetchTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "fetch_timeout", "must not be negative")
	}
	return nil
}

// Logger builds a zap logger at the configured level.
func (c *C) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// Usage writes the environment variables and their descriptions to w.
func Usage(w io.Writer) {
	env.Usage(&C{}, w, nil)
}
