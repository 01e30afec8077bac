package nostrwasm

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/nostr-wasm/config"
	"github.com/wippyai/nostr-wasm/internal/refcore"
	"github.com/wippyai/nostr-wasm/loader"
	"github.com/wippyai/nostr-wasm/nostr"
	"github.com/wippyai/nostr-wasm/secp256k1"
)

var (
	_ secp256k1.Core = (*loader.Instance)(nil)
	_ secp256k1.Core = (*refcore.Core)(nil)
	_ nostr.Crypto   = (*secp256k1.Facade)(nil)
)

// Module is a crypto core with its facade and event signer.
type Module struct {
	*secp256k1.Facade

	// Events signs and verifies Nostr events through the facade.
	Events *nostr.Signer

	inst *loader.Instance
}

// Load instantiates the compiled module from src and builds a facade over it.
func Load(ctx context.Context, src loader.Source, cfg *loader.Config, opts ...secp256k1.Option) (*Module, error) {
	inst, err := loader.Load(ctx, src, cfg)
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if cfg != nil {
		logger = cfg.Logger
	}
	m, err := build(ctx, inst, logger, opts)
	if err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}
	m.inst = inst
	return m, nil
}

// Reference builds a facade over the pure-Go reference core.
func Reference(ctx context.Context, opts ...secp256k1.Option) (*Module, error) {
	return build(ctx, refcore.New(0), nil, opts)
}

// Open builds a Module the way c describes: the reference core, or the module
// at c.WasmPath read from disk or fetched over http(s).
func Open(ctx context.Context, c *config.C, logger *zap.Logger, opts ...secp256k1.Option) (*Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]secp256k1.Option{secp256k1.WithLogger(logger)}, opts...)

	if c.Backend == config.BackendReference {
		logger.Debug("using reference core")
		return build(ctx, refcore.New(0), logger, opts)
	}

	return Load(ctx, Source(c), &loader.Config{
		Label:            c.Label,
		MemoryLimitPages: c.MemoryLimitPages,
		Logger:           logger,
	}, opts...)
}

// Source returns the binary source for c.WasmPath.
func Source(c *config.C) loader.Source {
	if strings.HasPrefix(c.WasmPath, "http://") || strings.HasPrefix(c.WasmPath, "https://") {
		return loader.URL(c.WasmPath, &http.Client{Timeout: c.FetchTimeout})
	}
	return loader.File(c.WasmPath)
}

func build(ctx context.Context, core secp256k1.Core, logger *zap.Logger, opts []secp256k1.Option) (*Module, error) {
	f, err := secp256k1.New(ctx, core, opts...)
	if err != nil {
		return nil, err
	}
	return &Module{Facade: f, Events: nostr.NewSigner(f, logger)}, nil
}

// Instance returns the loaded module, or nil for the reference core.
func (m *Module) Instance() *loader.Instance { return m.inst }

// Close releases the loaded module. It is a no-op for the reference core.
func (m *Module) Close(ctx context.Context) error {
	if m.inst == nil {
		return nil
	}
	return m.inst.Close(ctx)
}
