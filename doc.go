// Package nostrwasm signs and verifies secp256k1 BIP-340 Schnorr signatures
// and Nostr events by driving a compiled secp256k1 WebAssembly module.
//
// The module is opaque compiled code. This library supplies the host
// environment it expects, marshals fixed-size buffers through its linear
// memory and overwrites secret key material after every operation.
//
// # Architecture Overview
//
//	nostrwasm/           Root package: one-call setup of module, facade and event signer
//	├── abi/             Tagged addresses, region sizes, context flags, result codes
//	├── memory/          Byte and word views over linear memory, rebound on replacement
//	├── shim/            Host imports: abort, memcpy, resize refusal, fd_write channels
//	├── bindings/        Generated import and export symbol tables
//	├── bindgen/         Generator for bindings from the emscripten JS glue
//	├── loader/          wazero instantiation, init-once, typed export calls
//	├── secp256k1/       Facade: scratch regions, keypair scope with wipe, sign and verify
//	├── nostr/           Event canonical form, id hashing, finalize and verify
//	├── metrics/         Prometheus observer for facade operations
//	├── config/          Defaults, YAML file and environment
//	└── errors/          Structured error types
//
// # Quick Start
//
//	m, err := nostrwasm.Load(ctx, loader.File("secp256k1.wasm"), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close(ctx)
//
//	sk, _ := m.GenerateSecretKey()
//	ev := &nostr.Event{CreatedAt: time.Now().Unix(), Kind: 1, Content: "hello"}
//	if err := m.Events.Finalize(ctx, ev, sk, nil); err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// A Module serializes its operations; share one across goroutines or load
// one per goroutine for parallelism.
package nostrwasm
