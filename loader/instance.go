package loader

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/memory"
	"github.com/wippyai/nostr-wasm/shim"
)

// Instance is one initialized module. Its methods are safe for concurrent use
// but run one export at a time.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module
	env     *shim.Env
	heap    *memory.Heap
	fns     map[string]api.Function
	logger  *zap.Logger

	mu       sync.Mutex
	poisoned error
	closed   bool
}

// Heap returns the bound linear memory.
func (i *Instance) Heap() *memory.Heap { return i.heap }

// Env returns the shim serving the module's imports.
func (i *Instance) Env() *shim.Env { return i.env }

// Err returns the error that poisoned the instance, or nil.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.poisoned
}

// Close releases the module and its runtime.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.runtime.Close(ctx)
}

func (i *Instance) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.poisoned != nil {
		return nil, errors.Poisoned(i.poisoned)
	}
	if i.closed {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "closed module instance")
	}

	fn, ok := i.fns[name]
	if !ok {
		return nil, errors.MissingExport(name, "")
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		i.poisoned = errors.Call(name, err)
		i.logger.Error("module call failed, instance poisoned", zap.String("export", name), zap.Error(err))
		return nil, i.poisoned
	}

	if i.heap.Stale() {
		i.heap.Rebind()
		i.logger.Debug("memory views rebound", zap.Uint32("memory_bytes", i.heap.Size()))
	}
	return results, nil
}

func (i *Instance) callResult(ctx context.Context, name string, params ...uint64) (abi.Result, error) {
	res, err := i.call(ctx, name, params...)
	if err != nil {
		return abi.Failure, err
	}
	return abi.Result(api.DecodeU32(res[0])), nil
}

func (i *Instance) callAddr(ctx context.Context, name string, params ...uint64) (uint32, error) {
	res, err := i.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

func u(v uint32) uint64 { return api.EncodeU32(v) }

// Malloc allocates size bytes of module memory.
func (i *Instance) Malloc(ctx context.Context, size uint32) (abi.BufferAddr, error) {
	addr, err := i.callAddr(ctx, "malloc", u(size))
	if err != nil {
		return abi.Null, err
	}
	if addr == 0 {
		return abi.Null, errors.OutOfMemory(i.env.Label(), size)
	}
	return abi.BufferAddr(addr), nil
}

// Free releases memory returned by Malloc.
func (i *Instance) Free(ctx context.Context, addr abi.BufferAddr) error {
	_, err := i.call(ctx, "free", u(addr.Offset()))
	return err
}

// ContextCreate creates a context with the given capability flags.
func (i *Instance) ContextCreate(ctx context.Context, flags abi.Flags) (abi.ContextAddr, error) {
	addr, err := i.callAddr(ctx, "context_create", u(uint32(flags)))
	if err != nil {
		return abi.Null, err
	}
	if addr == 0 {
		return abi.Null, errors.CallFailed("context_create", "module returned a null context")
	}
	return abi.ContextAddr(addr), nil
}

// ContextRandomize reseeds the context's blinding from 32 bytes at seed.
func (i *Instance) ContextRandomize(ctx context.Context, c abi.ContextAddr, seed abi.SeedAddr) (abi.Result, error) {
	return i.callResult(ctx, "context_randomize", u(c.Offset()), u(seed.Offset()))
}

// KeypairCreate derives a keypair from the 32-byte secret key at sk.
func (i *Instance) KeypairCreate(ctx context.Context, c abi.ContextAddr, kp abi.KeypairAddr, sk abi.BufferAddr) (abi.Result, error) {
	return i.callResult(ctx, "keypair_create", u(c.Offset()), u(kp.Offset()), u(sk.Offset()))
}

// KeypairXOnlyPub extracts the x-only public key. parity may be abi.Null.
func (i *Instance) KeypairXOnlyPub(ctx context.Context, c abi.ContextAddr, pk abi.XOnlyKeyAddr, parity abi.BufferAddr, kp abi.KeypairAddr) (abi.Result, error) {
	return i.callResult(ctx, "keypair_xonly_pub", u(c.Offset()), u(pk.Offset()), u(parity.Offset()), u(kp.Offset()))
}

// XOnlyPubkeyParse parses 32 serialized bytes at in.
func (i *Instance) XOnlyPubkeyParse(ctx context.Context, c abi.ContextAddr, pk abi.XOnlyKeyAddr, in abi.BufferAddr) (abi.Result, error) {
	return i.callResult(ctx, "xonly_pubkey_parse", u(c.Offset()), u(pk.Offset()), u(in.Offset()))
}

// XOnlyPubkeySerialize writes the 32-byte serialization of pk to out.
func (i *Instance) XOnlyPubkeySerialize(ctx context.Context, c abi.ContextAddr, out abi.BufferAddr, pk abi.XOnlyKeyAddr) (abi.Result, error) {
	return i.callResult(ctx, "xonly_pubkey_serialize", u(c.Offset()), u(out.Offset()), u(pk.Offset()))
}

// SchnorrSign32 signs the 32-byte message at msg with auxiliary randomness at aux.
func (i *Instance) SchnorrSign32(ctx context.Context, c abi.ContextAddr, sig abi.SignatureAddr, msg abi.BufferAddr, kp abi.KeypairAddr, aux abi.BufferAddr) (abi.Result, error) {
	return i.callResult(ctx, "schnorrsig_sign32", u(c.Offset()), u(sig.Offset()), u(msg.Offset()), u(kp.Offset()), u(aux.Offset()))
}

// SchnorrVerify checks sig over msgLen bytes at msg.
func (i *Instance) SchnorrVerify(ctx context.Context, c abi.ContextAddr, sig abi.SignatureAddr, msg abi.BufferAddr, msgLen uint32, pk abi.XOnlyKeyAddr) (abi.Result, error) {
	return i.callResult(ctx, "schnorrsig_verify", u(c.Offset()), u(sig.Offset()), u(msg.Offset()), u(msgLen), u(pk.Offset()))
}

// SHA256Initialize resets the hash state at st.
func (i *Instance) SHA256Initialize(ctx context.Context, st abi.HashStateAddr) error {
	_, err := i.call(ctx, "sha256_initialize", u(st.Offset()))
	return err
}

// SHA256Write feeds n bytes at data into st.
func (i *Instance) SHA256Write(ctx context.Context, st abi.HashStateAddr, data abi.BufferAddr, n uint32) error {
	_, err := i.call(ctx, "sha256_write", u(st.Offset()), u(data.Offset()), u(n))
	return err
}

// SHA256Finalize writes the 32-byte digest of st to out.
func (i *Instance) SHA256Finalize(ctx context.Context, st abi.HashStateAddr, out abi.BufferAddr) error {
	_, err := i.call(ctx, "sha256_finalize", u(st.Offset()), u(out.Offset()))
	return err
}
