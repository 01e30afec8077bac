package loader

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/nostr-wasm/bindings"
	"github.com/wippyai/nostr-wasm/shim"
)

var i32 = api.ValueTypeI32

func i32s(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = i32
	}
	return out
}

// instantiateShim exports env under the namespace and symbols the module
// imports. Shim errors panic; wazero recovers them and fails the running
// export call with the error wrapped.
func instantiateShim(ctx context.Context, r wazero.Runtime, env *shim.Env, imports bindings.ImportTable) error {
	funcs := map[string]api.GoModuleFunc{
		"abort": func(context.Context, api.Module, []uint64) {
			panic(env.Abort())
		},
		"memcpy": func(_ context.Context, _ api.Module, stack []uint64) {
			if err := env.Memcpy(api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])); err != nil {
				panic(err)
			}
		},
		"resize": func(_ context.Context, _ api.Module, stack []uint64) {
			panic(env.Resize(api.DecodeU32(stack[0])))
		},
		"write": func(_ context.Context, _ api.Module, stack []uint64) {
			rc, err := env.Write(api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
			if err != nil {
				panic(err)
			}
			stack[0] = api.EncodeU32(rc)
		},
		"fd_seek": func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(env.FdSeek())
		},
		"fd_close": func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(env.FdClose())
		},
	}

	builder := r.NewHostModuleBuilder(imports.Module)
	for _, s := range imports.Functions() {
		sig, _ := bindings.SignatureOf(s.Name)
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(funcs[s.Name], i32s(sig.Params), i32s(sig.Results)).
			WithName(s.Name).
			Export(s.Symbol)
	}

	_, err := builder.Instantiate(ctx)
	return err
}
