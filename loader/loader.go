package loader

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nostr-wasm/bindings"
	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/shim"
)

// DefaultLabel tags shim diagnostics when Config.Label is empty.
const DefaultLabel = "secp256k1"

// Config holds configuration for Load.
type Config struct {
	// Label tags shim diagnostics and errors.
	Label string

	// MemoryLimitPages caps module memory in 64KiB pages.
	// 0 keeps the module's own maximum.
	MemoryLimitPages uint32

	// Logger overrides the package logger for this instance and its shim.
	Logger *zap.Logger

	// Imports and Exports override the generated tables. Zero values use
	// bindings.Imports and bindings.Exports.
	Imports *bindings.ImportTable
	Exports *bindings.ExportTable
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Label == "" {
		out.Label = DefaultLabel
	}
	if out.Logger == nil {
		out.Logger = Logger()
	}
	if out.Imports == nil {
		imp := bindings.Imports
		out.Imports = &imp
	}
	if out.Exports == nil {
		exp := bindings.Exports
		out.Exports = &exp
	}
	return out
}

// Load compiles and instantiates the module from src and runs its initializer.
// The caller owns the Instance and must Close it.
func Load(ctx context.Context, src Source, cfg *Config) (*Instance, error) {
	c := cfg.withDefaults()
	log := c.Logger.With(zap.String("source", src.Name()))

	if err := c.Imports.Validate(); err != nil {
		return nil, errors.Instantiation("import table", err)
	}
	if err := c.Exports.Validate(); err != nil {
		return nil, errors.Instantiation("export table", err)
	}

	bin, err := src.open(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("module binary read", zap.Int("bytes", len(bin)), zap.Bool("streaming", src.Streaming()))

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	inst, err := instantiate(ctx, r, bin, c, log)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func instantiate(ctx context.Context, r wazero.Runtime, bin []byte, c Config, log *zap.Logger) (*Instance, error) {
	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Instantiation("compile module", err)
	}
	log.Debug("module compiled")

	env := shim.New(c.Label,
		shim.WithLogger(c.Logger),
		shim.WithFileStubResults(c.Imports.FdSeekResult, c.Imports.FdCloseResult),
	)

	if err := instantiateShim(ctx, r, env, *c.Imports); err != nil {
		return nil, errors.Instantiation("instantiate shim", err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation("instantiate module", err)
	}

	mem := mod.ExportedMemory(c.Exports.Memory)
	if mem == nil {
		return nil, errors.MissingExport("memory", c.Exports.Memory)
	}

	fns, err := resolveExports(mod, *c.Exports)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		runtime: r,
		module:  mod,
		env:     env,
		heap:    env.Bind(mem),
		fns:     fns,
		logger:  log,
	}

	if _, err := inst.call(ctx, "init"); err != nil {
		return nil, errors.Instantiation("run static initializer", err)
	}
	log.Debug("module initialized", zap.Uint32("memory_bytes", inst.heap.Size()))

	return inst, nil
}

// resolveExports looks up every export and checks its arity.
func resolveExports(mod api.Module, table bindings.ExportTable) (map[string]api.Function, error) {
	fns := make(map[string]api.Function, len(table.Functions()))
	for _, s := range table.Functions() {
		fn := mod.ExportedFunction(s.Symbol)
		if fn == nil {
			return nil, errors.MissingExport(s.Name, s.Symbol)
		}

		want, _ := bindings.SignatureOf(s.Name)
		def := fn.Definition()
		if len(def.ParamTypes()) != want.Params || len(def.ResultTypes()) != want.Results {
			return nil, errors.Instantiation(fmt.Sprintf(
				"export %s (symbol %q) has %d params and %d results, want %d and %d",
				s.Name, s.Symbol, len(def.ParamTypes()), len(def.ResultTypes()), want.Params, want.Results,
			), nil)
		}
		fns[s.Name] = fn
	}
	return fns, nil
}
