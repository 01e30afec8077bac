package refcore

import (
	"bytes"
	"context"
	"encoding/hex"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/errors"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

type fixture struct {
	core *Core
	ctx  abi.ContextAddr
	sk   abi.BufferAddr
	kp   abi.KeypairAddr
	pk   abi.XOnlyKeyAddr
	out  abi.BufferAddr
	msg  abi.BufferAddr
	aux  abi.BufferAddr
	sig  abi.SignatureAddr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	c := New(0)

	alloc := func(n uint32) abi.BufferAddr {
		a, err := c.Malloc(ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	cx, err := c.ContextCreate(ctx, abi.ContextSignAndVerify)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		core: c,
		ctx:  cx,
		sk:   alloc(abi.PrivateKeyLen),
		kp:   abi.KeypairAddr(alloc(abi.KeypairLen)),
		pk:   abi.XOnlyKeyAddr(alloc(abi.XOnlyKeyLen)),
		out:  alloc(abi.XOnlyPubkeyLen),
		msg:  alloc(abi.MessageHashLen),
		aux:  alloc(abi.EntropyLen),
		sig:  abi.SignatureAddr(alloc(abi.SignatureLen)),
	}
}

func (f *fixture) set(t *testing.T, addr uint32, b []byte) {
	t.Helper()
	if err := f.core.Heap().Set(addr, b); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) get(t *testing.T, addr, n uint32) []byte {
	t.Helper()
	b, err := f.core.Heap().Slice(addr, n)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// BIP-340 test vectors 0 and 1.
var vectors = []struct {
	sk, pk, aux, msg, sig string
}{
	{
		sk:  "0000000000000000000000000000000000000000000000000000000000000003",
		pk:  "F9308A019258C31049344F85F89D5229B531C845836F99B08601F113BCE036F9",
		aux: "0000000000000000000000000000000000000000000000000000000000000000",
		msg: "0000000000000000000000000000000000000000000000000000000000000000",
		sig: "E907831F80848D1069A5371B402410364BDF1C5F8307B0084C55F1CE2DCA821525F66A4A85EA8B71E482A74F382D2CE5EBEEE8FDB2172F477DF4900D310536C0",
	},
	{
		sk:  "B7E151628AED2A6ABF7158809CF4F3C762E7160F38B4DA56A784D9045190CFEF",
		pk:  "DFF1D77F2A671C5F36183726DB2341BE58FEAE1DA2DECED843240F7B502BA659",
		aux: "0000000000000000000000000000000000000000000000000000000000000001",
		msg: "243F6A8885A308D313198A2E03707344A4093822299F31D0082EFA98EC4E6C89",
		sig: "6896BD60EEAE296DB48A229FF71DFE071BDE413E6D43F917DC8DCF8C78DE33418906D11AC976ABCCB20B091292BFF4EA897EFCB639EA871CFA95F6DE339E4B0A",
	},
}

func TestBIP340Vectors(t *testing.T) {
	ctx := context.Background()

	for i, v := range vectors {
		f := newFixture(t)
		f.set(t, f.sk.Offset(), unhex(t, v.sk))
		f.set(t, f.msg.Offset(), unhex(t, v.msg))
		f.set(t, f.aux.Offset(), unhex(t, v.aux))

		if res, err := f.core.KeypairCreate(ctx, f.ctx, f.kp, f.sk); err != nil || !res.OK() {
			t.Fatalf("#%d keypair_create = %d, %v", i, res, err)
		}
		if res, err := f.core.KeypairXOnlyPub(ctx, f.ctx, f.pk, abi.Null, f.kp); err != nil || !res.OK() {
			t.Fatalf("#%d keypair_xonly_pub = %d, %v", i, res, err)
		}
		if res, err := f.core.XOnlyPubkeySerialize(ctx, f.ctx, f.out, f.pk); err != nil || !res.OK() {
			t.Fatalf("#%d xonly_pubkey_serialize = %d, %v", i, res, err)
		}
		if got := f.get(t, f.out.Offset(), 32); !bytes.Equal(got, unhex(t, v.pk)) {
			t.Errorf("#%d pubkey = %x", i, got)
		}

		if res, err := f.core.SchnorrSign32(ctx, f.ctx, f.sig, f.msg, f.kp, f.aux); err != nil || !res.OK() {
			t.Fatalf("#%d sign = %d, %v", i, res, err)
		}
		if got := f.get(t, f.sig.Offset(), 64); !bytes.Equal(got, unhex(t, v.sig)) {
			t.Errorf("#%d sig = %x", i, got)
		}

		if res, err := f.core.SchnorrVerify(ctx, f.ctx, f.sig, f.msg, 32, f.pk); err != nil || !res.OK() {
			t.Errorf("#%d verify = %d, %v", i, res, err)
		}
		if res, _ := f.core.SchnorrVerify(ctx, f.ctx, f.sig, f.msg, 31, f.pk); res.OK() {
			t.Errorf("#%d verify accepted a 31-byte message", i)
		}
	}
}

func TestKeypairCreate_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	keys := map[string][]byte{
		"zero":  make([]byte, 32),
		"order": unhex(t, "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141"),
		"ff":    bytes.Repeat([]byte{0xff}, 32),
	}

	for name, sk := range keys {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.set(t, f.kp.Offset(), bytes.Repeat([]byte{0xaa}, abi.KeypairLen))
			f.set(t, f.sk.Offset(), sk)

			res, err := f.core.KeypairCreate(ctx, f.ctx, f.kp, f.sk)
			if err != nil {
				t.Fatal(err)
			}
			if res.OK() {
				t.Fatal("invalid key accepted")
			}
			if got := f.get(t, f.kp.Offset(), abi.KeypairLen); !bytes.Equal(got, make([]byte, abi.KeypairLen)) {
				t.Errorf("keypair not zeroed on failure: %x", got)
			}
		})
	}
}

func TestXOnlyPubkeyParse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// BIP-340 vector 5: not on the curve
	bad := unhex(t, "EEFDEA4CDB677750A420FEE807EACF21EB9898AE79B9768766E4FAA04A2D4A34")
	f.set(t, f.out.Offset(), bad)
	if res, err := f.core.XOnlyPubkeyParse(ctx, f.ctx, f.pk, f.out); err != nil || res.OK() {
		t.Errorf("parse of invalid x = %d, %v", res, err)
	}

	f.set(t, f.out.Offset(), unhex(t, vectors[1].pk))
	if res, err := f.core.XOnlyPubkeyParse(ctx, f.ctx, f.pk, f.out); err != nil || !res.OK() {
		t.Fatalf("parse = %d, %v", res, err)
	}
	f.set(t, f.out.Offset(), make([]byte, 32))
	if res, _ := f.core.XOnlyPubkeySerialize(ctx, f.ctx, f.out, f.pk); !res.OK() {
		t.Fatal("serialize failed")
	}
	if got := f.get(t, f.out.Offset(), 32); !bytes.Equal(got, unhex(t, vectors[1].pk)) {
		t.Errorf("round trip = %x", got)
	}
}

func TestSHA256(t *testing.T) {
	ctx := context.Background()
	c := New(1)
	st, _ := c.Malloc(ctx, abi.SHA256StateLen)
	data, _ := c.Malloc(ctx, 3)
	out, _ := c.Malloc(ctx, 32)
	c.Heap().Set(data.Offset(), []byte("abc"))

	if err := c.SHA256Write(ctx, abi.HashStateAddr(st), data, 3); err == nil {
		t.Error("write before initialize succeeded")
	}
	if err := c.SHA256Initialize(ctx, abi.HashStateAddr(st)); err != nil {
		t.Fatal(err)
	}
	if err := c.SHA256Write(ctx, abi.HashStateAddr(st), data, 3); err != nil {
		t.Fatal(err)
	}
	if err := c.SHA256Finalize(ctx, abi.HashStateAddr(st), out); err != nil {
		t.Fatal(err)
	}
	got, _ := c.Heap().Slice(out.Offset(), 32)
	want := unhex(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	if !bytes.Equal(got, want) {
		t.Errorf("sha256(abc) = %x", got)
	}
}

func TestMallocAndFaults(t *testing.T) {
	ctx := context.Background()
	c := New(1)

	a, err := c.Malloc(ctx, 3)
	if err != nil || a != heapBase {
		t.Fatalf("Malloc = %d, %v", a, err)
	}
	b, _ := c.Malloc(ctx, 1)
	if b != heapBase+8 {
		t.Errorf("second Malloc = %d", b)
	}
	if _, err := c.Malloc(ctx, 1<<20); !stderrors.Is(err, errors.ErrOutOfMemory) {
		t.Errorf("oversized Malloc: %v", err)
	}

	boom := stderrors.New("boom")
	c.Fault("malloc", boom)
	if _, err := c.Malloc(ctx, 1); !stderrors.Is(err, boom) {
		t.Errorf("faulted Malloc: %v", err)
	}
	c.Fault("malloc", nil)
	if _, err := c.Malloc(ctx, 1); err != nil {
		t.Errorf("Malloc after clearing fault: %v", err)
	}
	if n := c.Calls("malloc"); n != 5 {
		t.Errorf("Calls(malloc) = %d, want 5", n)
	}

	if _, err := c.ContextRandomize(ctx, 12345, 0); err == nil {
		t.Error("unknown context accepted")
	}
	if _, err := c.ContextCreate(ctx, abi.FlagBitSign); err == nil {
		t.Error("context without type bit accepted")
	}
}
