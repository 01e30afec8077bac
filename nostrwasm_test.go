package nostrwasm

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/config"
	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/internal/wasmtest"
	"github.com/wippyai/nostr-wasm/loader"
	"github.com/wippyai/nostr-wasm/nostr"
)

var testSK = bytes.Repeat([]byte{0xa7}, 32)

func loadStub(t *testing.T, m *wasmtest.Module) *Module {
	t.Helper()
	ctx := context.Background()
	mod, err := Load(ctx, loader.Bytes(m.Binary()), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { mod.Close(ctx) })
	return mod
}

func assertNoSecret(t *testing.T, m *Module) {
	t.Helper()
	mem := m.Instance().Heap().U8()
	if bytes.Contains(mem, testSK) {
		t.Error("secret key still resident in module memory")
	}
	if !bytes.Contains(mem, bytes.Repeat([]byte{abi.WipedKeyByte}, abi.PrivateKeyLen)) {
		t.Error("no wiped key region in module memory")
	}
	if !bytes.Contains(mem, bytes.Repeat([]byte{abi.WipedKeypairByte}, abi.KeypairLen)) {
		t.Error("no wiped keypair region in module memory")
	}
}

func TestReference_EventRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, err := Reference(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close(ctx)

	if m.Instance() != nil {
		t.Error("reference module has an instance")
	}

	sk, err := m.GenerateSecretKey()
	if err != nil {
		t.Fatal(err)
	}
	ev := &nostr.Event{CreatedAt: 1700000000, Kind: 1, Content: "hello"}
	if err := m.Events.Finalize(ctx, ev, sk, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := m.Events.Verify(ctx, ev); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestLoad_WipesModuleMemory(t *testing.T) {
	ctx := context.Background()
	m := loadStub(t, wasmtest.New())

	pk, err := m.PublicKey(ctx, testSK)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if len(pk) != abi.XOnlyPubkeyLen {
		t.Errorf("public key is %d bytes", len(pk))
	}
	assertNoSecret(t, m)

	if _, err := m.Sign(ctx, testSK, make([]byte, 32), nil); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	assertNoSecret(t, m)
}

func TestLoad_ModuleResults(t *testing.T) {
	ctx := context.Background()

	t.Run("keypair rejected", func(t *testing.T) {
		m := loadStub(t, wasmtest.New().Set("keypair_create", wasmtest.Const(0)))

		_, err := m.PublicKey(ctx, testSK)
		if !stderrors.Is(err, errors.ErrInvalidSecretKey) {
			t.Fatalf("error = %v", err)
		}
		assertNoSecret(t, m)
	})

	t.Run("pubkey rejected", func(t *testing.T) {
		m := loadStub(t, wasmtest.New().Set("xonly_pubkey_parse", wasmtest.Const(0)))

		ok, err := m.Verify(ctx, make([]byte, 64), make([]byte, 32), make([]byte, 32))
		if ok || !stderrors.Is(err, errors.ErrInvalidPublicKey) {
			t.Fatalf("Verify = %v, %v", ok, err)
		}
	})

	t.Run("verify false", func(t *testing.T) {
		m := loadStub(t, wasmtest.New().Set("schnorrsig_verify", wasmtest.Const(0)))

		ok, err := m.Verify(ctx, make([]byte, 64), make([]byte, 32), make([]byte, 32))
		if ok || err != nil {
			t.Fatalf("Verify = %v, %v", ok, err)
		}
	})

	t.Run("randomize rejected", func(t *testing.T) {
		m := loadStub(t, wasmtest.New().Set("context_randomize", wasmtest.Const(0)))

		_, err := m.Sign(ctx, testSK, make([]byte, 32), nil)
		if err == nil || !bytes.Contains([]byte(err.Error()), []byte("failed to randomize context")) {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestLoad_AbortMidSign(t *testing.T) {
	ctx := context.Background()
	m := loadStub(t, wasmtest.New().Set("schnorrsig_sign32", wasmtest.Call("abort"), wasmtest.Const(1)))

	_, err := m.Sign(ctx, testSK, make([]byte, 32), nil)
	if !stderrors.Is(err, errors.ErrAborted) {
		t.Fatalf("error = %v", err)
	}
	assertNoSecret(t, m)

	_, err = m.PublicKey(ctx, testSK)
	if !stderrors.Is(err, errors.ErrPoisoned) {
		t.Fatalf("after abort: %v", err)
	}
	assertNoSecret(t, m)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "secp256k1.wasm")
	if err := os.WriteFile(path, wasmtest.New().Binary(), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		cfg      config.C
		instance bool
	}{
		{"reference", config.C{Backend: config.BackendReference}, false},
		{"wasm file", config.C{Backend: config.BackendWasm, WasmPath: path, Label: "test"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Open(ctx, &tt.cfg, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer m.Close(ctx)

			if (m.Instance() != nil) != tt.instance {
				t.Errorf("instance = %v, want %v", m.Instance() != nil, tt.instance)
			}
			if _, err := m.SHA256(ctx, []byte("abc")); err != nil {
				t.Errorf("SHA256: %v", err)
			}
		})
	}
}

func TestSource(t *testing.T) {
	if s := Source(&config.C{WasmPath: "https://example.com/secp256k1.wasm"}); !s.Streaming() {
		t.Error("URL source is not streaming")
	}
	if s := Source(&config.C{WasmPath: "secp256k1.wasm"}); s.Streaming() {
		t.Error("file source is streaming")
	}
}
