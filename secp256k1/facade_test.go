package secp256k1

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/internal/refcore"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newFacade(t *testing.T, opts ...Option) (*Facade, *refcore.Core) {
	t.Helper()
	core := refcore.New(0)
	f, err := New(context.Background(), core, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, core
}

const (
	vecSK  = "B7E151628AED2A6ABF7158809CF4F3C762E7160F38B4DA56A784D9045190CFEF"
	vecPK  = "DFF1D77F2A671C5F36183726DB2341BE58FEAE1DA2DECED843240F7B502BA659"
	vecAux = "0000000000000000000000000000000000000000000000000000000000000001"
	vecMsg = "243F6A8885A308D313198A2E03707344A4093822299F31D0082EFA98EC4E6C89"
	vecSig = "6896BD60EEAE296DB48A229FF71DFE071BDE413E6D43F917DC8DCF8C78DE33418906D11AC976ABCCB20B091292BFF4EA897EFCB639EA871CFA95F6DE339E4B0A"
)

func TestPublicKey(t *testing.T) {
	ctx := context.Background()
	f, _ := newFacade(t)
	sk := unhex(t, vecSK)

	first, err := f.PublicKey(ctx, sk)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if !bytes.Equal(first, unhex(t, vecPK)) {
		t.Errorf("PublicKey = %x", first)
	}

	for i := 0; i < 3; i++ {
		again, err := f.PublicKey(ctx, sk)
		if err != nil || !bytes.Equal(again, first) {
			t.Fatalf("call %d: %x, %v", i, again, err)
		}
	}
}

func TestSign_WithEntropy(t *testing.T) {
	f, _ := newFacade(t)
	sig, err := f.Sign(context.Background(), unhex(t, vecSK), unhex(t, vecMsg), unhex(t, vecAux))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !bytes.Equal(sig, unhex(t, vecSig)) {
		t.Errorf("Sign = %x", sig)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f, _ := newFacade(t)

	for i := 0; i < 5; i++ {
		sk, err := f.GenerateSecretKey()
		if err != nil {
			t.Fatal(err)
		}
		pk, err := f.PublicKey(ctx, sk)
		if err != nil {
			t.Fatalf("PublicKey: %v", err)
		}
		hash := sha256.Sum256([]byte{byte(i)})

		sig, err := f.Sign(ctx, sk, hash[:], nil)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		ok, err := f.Verify(ctx, sig, hash[:], pk)
		if err != nil || !ok {
			t.Fatalf("Verify = %v, %v", ok, err)
		}

		other := sha256.Sum256([]byte{byte(i), 1})
		if ok, _ := f.Verify(ctx, sig, other[:], pk); ok {
			t.Error("signature verified against a different hash")
		}
	}
}

func TestVerify_BitFlips(t *testing.T) {
	ctx := context.Background()
	f, _ := newFacade(t)

	sk := unhex(t, vecSK)
	hash := unhex(t, vecMsg)
	pk, _ := f.PublicKey(ctx, sk)
	sig, err := f.Sign(ctx, sk, hash, nil)
	if err != nil {
		t.Fatal(err)
	}

	for bit := 0; bit < len(sig)*8; bit += 7 {
		flipped := bytes.Clone(sig)
		flipped[bit/8] ^= 1 << (bit % 8)

		ok, err := f.Verify(ctx, flipped, hash, pk)
		if err != nil {
			t.Fatalf("bit %d: %v", bit, err)
		}
		if ok {
			t.Errorf("signature with bit %d flipped verified", bit)
		}
	}
}

func TestInvalidSecretKeys(t *testing.T) {
	ctx := context.Background()
	f, _ := newFacade(t)
	hash := make([]byte, 32)

	for name, sk := range map[string][]byte{
		"zero": make([]byte, 32),
		"ff":   bytes.Repeat([]byte{0xff}, 32),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.PublicKey(ctx, sk)
			if !stderrors.Is(err, errors.ErrInvalidSecretKey) {
				t.Errorf("PublicKey: %v", err)
			}
			if err == nil || !strings.Contains(err.Error(), "sk_to_pk: invalid private key") {
				t.Errorf("PublicKey message: %v", err)
			}

			_, err = f.Sign(ctx, sk, hash, nil)
			if !stderrors.Is(err, errors.ErrInvalidSecretKey) {
				t.Errorf("Sign: %v", err)
			}
			if err == nil || !strings.Contains(err.Error(), "BIP-340 sign: invalid private key") {
				t.Errorf("Sign message: %v", err)
			}
		})
	}
}

func TestVerify_InvalidPublicKey(t *testing.T) {
	f, _ := newFacade(t)
	pk := unhex(t, "EEFDEA4CDB677750A420FEE807EACF21EB9898AE79B9768766E4FAA04A2D4A34")

	ok, err := f.Verify(context.Background(), make([]byte, 64), make([]byte, 32), pk)
	if ok {
		t.Error("Verify returned true")
	}
	if !stderrors.Is(err, errors.ErrInvalidPublicKey) {
		t.Fatalf("error %v is not ErrInvalidPublicKey", err)
	}
	if !strings.Contains(err.Error(), "BIP-340 verify") {
		t.Errorf("message %q does not name the operation", err)
	}
}

func assertWiped(t *testing.T, f *Facade, sk []byte) {
	t.Helper()
	key, err := f.heap.Slice(f.sk.Offset(), abi.PrivateKeyLen)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, bytes.Repeat([]byte{abi.WipedKeyByte}, abi.PrivateKeyLen)) {
		t.Errorf("key region = %x", key)
	}
	if bytes.Equal(key, sk) {
		t.Error("key region still holds the secret key")
	}
	kp, err := f.heap.Slice(f.keypair.Offset(), abi.KeypairLen)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(kp, bytes.Repeat([]byte{abi.WipedKeypairByte}, abi.KeypairLen)) {
		t.Errorf("keypair region = %x", kp)
	}
}

func TestWipe_AllPaths(t *testing.T) {
	ctx := context.Background()
	sk := unhex(t, vecSK)
	hash := unhex(t, vecMsg)
	boom := stderrors.New("trap")

	tests := []struct {
		name  string
		fault string
		sk    []byte
		op    func(f *Facade, sk []byte) error
	}{
		{"pubkey ok", "", sk, func(f *Facade, sk []byte) error { _, err := f.PublicKey(ctx, sk); return err }},
		{"sign ok", "", sk, func(f *Facade, sk []byte) error { _, err := f.Sign(ctx, sk, hash, nil); return err }},
		{"pubkey invalid key", "", make([]byte, 32), func(f *Facade, sk []byte) error { _, err := f.PublicKey(ctx, sk); return err }},
		{"pubkey trap", "keypair_xonly_pub", sk, func(f *Facade, sk []byte) error { _, err := f.PublicKey(ctx, sk); return err }},
		{"sign trap", "schnorrsig_sign32", sk, func(f *Facade, sk []byte) error { _, err := f.Sign(ctx, sk, hash, nil); return err }},
		{"keypair trap", "keypair_create", sk, func(f *Facade, sk []byte) error { _, err := f.Sign(ctx, sk, hash, nil); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, core := newFacade(t)
			if tt.fault != "" {
				core.Fault(tt.fault, boom)
			}

			err := tt.op(f, tt.sk)
			if tt.fault != "" && !stderrors.Is(err, boom) {
				t.Errorf("error %v does not carry the trap", err)
			}
			assertWiped(t, f, tt.sk)
		})
	}
}

func TestWipe_Panic(t *testing.T) {
	f, _ := newFacade(t)
	sk := unhex(t, vecSK)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		_ = f.withKeypair(context.Background(), OpPubkey, sk, func() error {
			panic("mid-operation")
		})
	}()
	assertWiped(t, f, sk)
}

func TestRandomize_BeforeSecretOpsOnly(t *testing.T) {
	ctx := context.Background()
	f, core := newFacade(t)
	sk := unhex(t, vecSK)
	hash := unhex(t, vecMsg)

	pk, _ := f.PublicKey(ctx, sk)
	if n := core.Calls("context_randomize"); n != 1 {
		t.Errorf("after PublicKey: %d randomizations", n)
	}
	sig, _ := f.Sign(ctx, sk, hash, nil)
	if n := core.Calls("context_randomize"); n != 2 {
		t.Errorf("after Sign: %d randomizations", n)
	}
	if _, err := f.Verify(ctx, sig, hash, pk); err != nil {
		t.Fatal(err)
	}
	if n := core.Calls("context_randomize"); n != 2 {
		t.Errorf("Verify randomized the context (%d)", n)
	}
}

// scripted overrides single results of a refcore.
type scripted struct {
	*refcore.Core
	randomize abi.Result
	keypair   abi.Result
}

func (s *scripted) ContextRandomize(ctx context.Context, c abi.ContextAddr, seed abi.SeedAddr) (abi.Result, error) {
	if _, err := s.Core.ContextRandomize(ctx, c, seed); err != nil {
		return abi.Failure, err
	}
	return s.randomize, nil
}

func (s *scripted) KeypairCreate(ctx context.Context, c abi.ContextAddr, kp abi.KeypairAddr, sk abi.BufferAddr) (abi.Result, error) {
	if _, err := s.Core.KeypairCreate(ctx, c, kp, sk); err != nil {
		return abi.Failure, err
	}
	return s.keypair, nil
}

func TestRandomizeFailure(t *testing.T) {
	core := &scripted{Core: refcore.New(0), randomize: abi.Failure, keypair: abi.Success}
	f, err := New(context.Background(), core)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.PublicKey(context.Background(), unhex(t, vecSK))
	if err == nil || !strings.Contains(err.Error(), "failed to randomize context") {
		t.Fatalf("error = %v", err)
	}
	if n := core.Calls("keypair_create"); n != 0 {
		t.Errorf("keypair derived after failed randomization")
	}
}

func TestKeypairResultCheckedFirst(t *testing.T) {
	core := &scripted{Core: refcore.New(0), randomize: abi.Success, keypair: abi.Failure}
	f, err := New(context.Background(), core)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.PublicKey(context.Background(), unhex(t, vecSK))
	if !stderrors.Is(err, errors.ErrInvalidSecretKey) {
		t.Fatalf("error = %v", err)
	}
	if n := core.Calls("keypair_xonly_pub"); n != 0 {
		t.Errorf("keypair used after keypair_create failed")
	}
	assertWiped(t, f, unhex(t, vecSK))
}

func TestSHA256(t *testing.T) {
	ctx := context.Background()
	f, core := newFacade(t)

	got, err := f.SHA256(ctx, []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if hex.EncodeToString(got) != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("sha256(abc) = %x", got)
	}

	for _, n := range []int{0, 256, 1000, 10} {
		data := bytes.Repeat([]byte{'x'}, n)
		got, err := f.SHA256(ctx, data)
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		want := sha256.Sum256(data)
		if !bytes.Equal(got, want[:]) {
			t.Errorf("len %d: digest %x", n, got)
		}
	}

	if n := core.Calls("free"); n != 1 {
		t.Errorf("buffer freed %d times, want 1", n)
	}
	if f.bufCap != 1000 {
		t.Errorf("buffer capacity = %d, want 1000", f.bufCap)
	}
}

func TestInvalidLengths(t *testing.T) {
	ctx := context.Background()
	f, _ := newFacade(t)
	short := make([]byte, 31)
	ok32 := make([]byte, 32)

	checks := map[string]error{}
	_, checks["pubkey"] = f.PublicKey(ctx, short)
	_, checks["sign sk"] = f.Sign(ctx, short, ok32, nil)
	_, checks["sign hash"] = f.Sign(ctx, ok32, short, nil)
	_, checks["sign entropy"] = f.Sign(ctx, ok32, ok32, short)
	_, checks["verify sig"] = f.Verify(ctx, ok32, ok32, ok32)
	_, checks["verify pk"] = f.Verify(ctx, make([]byte, 64), ok32, short)

	for name, err := range checks {
		if !stderrors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestObserver(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	seen := map[string]int{}
	failed := map[string]int{}

	f, _ := newFacade(t, WithObserver(ObserverFunc(func(op string, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen[op]++
		if err != nil {
			failed[op]++
		}
	})))

	sk := unhex(t, vecSK)
	f.PublicKey(ctx, sk)
	f.PublicKey(ctx, make([]byte, 32))
	f.Sign(ctx, sk, make([]byte, 32), nil)
	f.GenerateSecretKey()
	f.SHA256(ctx, nil)

	want := map[string]int{OpPubkey: 2, OpSign: 1, OpGenerate: 1, OpSHA256: 1}
	for op, n := range want {
		if seen[op] != n {
			t.Errorf("%s observed %d times, want %d", op, seen[op], n)
		}
	}
	if failed[OpPubkey] != 1 {
		t.Errorf("failed pubkey ops = %d, want 1", failed[OpPubkey])
	}
}

func TestWithRandom(t *testing.T) {
	seq := bytes.Repeat([]byte{7}, 32)
	f, _ := newFacade(t, WithRandom(bytes.NewReader(seq)))

	sk, err := f.GenerateSecretKey()
	if err != nil || !bytes.Equal(sk, seq) {
		t.Fatalf("GenerateSecretKey = %x, %v", sk, err)
	}
	if _, err := f.GenerateSecretKey(); err == nil {
		t.Error("exhausted random source did not fail")
	}
}

func TestConcurrentUse(t *testing.T) {
	ctx := context.Background()
	f, _ := newFacade(t)
	sk := unhex(t, vecSK)
	pk := unhex(t, vecPK)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			hash := sha256.Sum256([]byte{byte(g)})
			for i := 0; i < 10; i++ {
				sig, err := f.Sign(ctx, sk, hash[:], nil)
				if err != nil {
					errs <- err
					return
				}
				ok, err := f.Verify(ctx, sig, hash[:], pk)
				if err != nil || !ok {
					errs <- stderrors.New("signature did not verify")
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
