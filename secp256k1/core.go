package secp256k1

import (
	"context"
	"time"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/memory"
)

// Core is the export surface of the compiled module. *loader.Instance
// implements it over wazero; internal/refcore implements it in Go.
type Core interface {
	Heap() *memory.Heap

	Malloc(ctx context.Context, size uint32) (abi.BufferAddr, error)
	Free(ctx context.Context, addr abi.BufferAddr) error

	ContextCreate(ctx context.Context, flags abi.Flags) (abi.ContextAddr, error)
	ContextRandomize(ctx context.Context, c abi.ContextAddr, seed abi.SeedAddr) (abi.Result, error)

	KeypairCreate(ctx context.Context, c abi.ContextAddr, kp abi.KeypairAddr, sk abi.BufferAddr) (abi.Result, error)
	KeypairXOnlyPub(ctx context.Context, c abi.ContextAddr, pk abi.XOnlyKeyAddr, parity abi.BufferAddr, kp abi.KeypairAddr) (abi.Result, error)
	XOnlyPubkeyParse(ctx context.Context, c abi.ContextAddr, pk abi.XOnlyKeyAddr, in abi.BufferAddr) (abi.Result, error)
	XOnlyPubkeySerialize(ctx context.Context, c abi.ContextAddr, out abi.BufferAddr, pk abi.XOnlyKeyAddr) (abi.Result, error)

	SchnorrSign32(ctx context.Context, c abi.ContextAddr, sig abi.SignatureAddr, msg abi.BufferAddr, kp abi.KeypairAddr, aux abi.BufferAddr) (abi.Result, error)
	SchnorrVerify(ctx context.Context, c abi.ContextAddr, sig abi.SignatureAddr, msg abi.BufferAddr, msgLen uint32, pk abi.XOnlyKeyAddr) (abi.Result, error)

	SHA256Initialize(ctx context.Context, st abi.HashStateAddr) error
	SHA256Write(ctx context.Context, st abi.HashStateAddr, data abi.BufferAddr, n uint32) error
	SHA256Finalize(ctx context.Context, st abi.HashStateAddr, out abi.BufferAddr) error
}

// Observer receives one report per facade operation.
type Observer interface {
	Observe(op string, d time.Duration, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(op string, d time.Duration, err error)

// Observe implements Observer.
func (f ObserverFunc) Observe(op string, d time.Duration, err error) { f(op, d, err) }
