// Package refcore is a pure-Go stand-in for the compiled secp256k1 module.
//
// It implements the same export surface over a flat linear memory, with the
// same result-code and buffer conventions, using btcec for the curve and
// BIP-340. The facade cannot tell it apart from a loaded module, which makes
// it the reference backend and the test double for the facade.
//
// Opaque layouts are private to this package: a keypair is the secret key
// followed by the uncompressed point, an x-only key is the even-Y point.
package refcore

import (
	"context"
	"hash"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/memory"
)

// DefaultPages is the memory size New uses for zero pages.
const DefaultPages = 4

const (
	label     = "refcore"
	heapBase  = 8
	align     = 8
	pointLen  = 64
	contextSz = 16
)

// Core implements the module export surface in Go.
type Core struct {
	heap *memory.Heap

	mu       sync.Mutex
	top      uint32
	contexts map[uint32]abi.Flags
	hashes   map[uint32]hash.Hash
	calls    map[string]int
	faults   map[string]error
}

// New creates a Core over pages of zeroed memory.
func New(pages uint32) *Core {
	if pages == 0 {
		pages = DefaultPages
	}
	return &Core{
		heap:     memory.Bind(memory.NewFlat(pages)),
		top:      heapBase,
		contexts: make(map[uint32]abi.Flags),
		hashes:   make(map[uint32]hash.Hash),
		calls:    make(map[string]int),
		faults:   make(map[string]error),
	}
}

// Heap returns the bound linear memory.
func (c *Core) Heap() *memory.Heap { return c.heap }

// Calls returns how often an export ran.
func (c *Core) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Fault makes every later call to the export fail with err, the way a trap
// fails a loaded module. A nil err clears the fault.
func (c *Core) Fault(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.faults, name)
		return
	}
	c.faults[name] = err
}

func (c *Core) enter(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
	if err := c.faults[name]; err != nil {
		return errors.Call(name, err)
	}
	return nil
}

// Malloc bump-allocates size bytes. Memory is never reused.
func (c *Core) Malloc(_ context.Context, size uint32) (abi.BufferAddr, error) {
	if err := c.enter("malloc"); err != nil {
		return abi.Null, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	addr := c.top
	next := (uint64(addr) + uint64(size) + align - 1) &^ (align - 1)
	if next > uint64(c.heap.Size()) {
		return abi.Null, errors.OutOfMemory(label, size)
	}
	c.top = uint32(next)
	return abi.BufferAddr(addr), nil
}

// Free is a no-op.
func (c *Core) Free(context.Context, abi.BufferAddr) error {
	return c.enter("free")
}

// ContextCreate allocates a context record.
func (c *Core) ContextCreate(ctx context.Context, flags abi.Flags) (abi.ContextAddr, error) {
	if err := c.enter("context_create"); err != nil {
		return abi.Null, err
	}
	if !flags.Has(abi.FlagTypeContext) {
		return abi.Null, errors.CallFailed("context_create", "flags lack the context type bit")
	}

	addr, err := c.Malloc(ctx, contextSz)
	if err != nil {
		return abi.Null, err
	}

	c.mu.Lock()
	c.contexts[addr.Offset()] = flags
	c.mu.Unlock()
	return abi.ContextAddr(addr), nil
}

func (c *Core) checkContext(name string, ctx abi.ContextAddr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contexts[ctx.Offset()]; !ok {
		return errors.CallFailed(name, "unknown context")
	}
	return nil
}

// ContextRandomize accepts any 32-byte seed. btcec blinds nothing, so the
// seed is only bounds-checked.
func (c *Core) ContextRandomize(_ context.Context, ctx abi.ContextAddr, seed abi.SeedAddr) (abi.Result, error) {
	if err := c.enter("context_randomize"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("context_randomize", ctx); err != nil {
		return abi.Failure, err
	}
	if _, err := c.heap.View(seed.Offset(), abi.RandomSeedLen); err != nil {
		return abi.Failure, err
	}
	return abi.Success, nil
}

// scalar parses a secret key, rejecting zero and values not below the group order.
func scalar(sk []byte) (*btcec.PrivateKey, bool) {
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(sk); overflow || s.IsZero() {
		return nil, false
	}
	return btcec.PrivKeyFromScalar(&s), true
}

// point returns X||Y of pub.
func point(pub *btcec.PublicKey) []byte {
	return pub.SerializeUncompressed()[1:]
}

func parsePoint(b []byte) (*btcec.PublicKey, error) {
	buf := make([]byte, 1+pointLen)
	buf[0] = 0x04
	copy(buf[1:], b)
	return btcec.ParsePubKey(buf)
}

// KeypairCreate derives a keypair. On failure the keypair is zeroed.
func (c *Core) KeypairCreate(_ context.Context, ctx abi.ContextAddr, kp abi.KeypairAddr, sk abi.BufferAddr) (abi.Result, error) {
	if err := c.enter("keypair_create"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("keypair_create", ctx); err != nil {
		return abi.Failure, err
	}

	secret, err := c.heap.Slice(sk.Offset(), abi.PrivateKeyLen)
	if err != nil {
		return abi.Failure, err
	}
	out, err := c.heap.View(kp.Offset(), abi.KeypairLen)
	if err != nil {
		return abi.Failure, err
	}

	priv, ok := scalar(secret)
	if !ok {
		clear(out)
		return abi.Failure, nil
	}
	copy(out, secret)
	copy(out[abi.PrivateKeyLen:], point(priv.PubKey()))
	clear(secret)
	return abi.Success, nil
}

func (c *Core) keypair(kp abi.KeypairAddr) (*btcec.PrivateKey, bool, error) {
	b, err := c.heap.Slice(kp.Offset(), abi.KeypairLen)
	if err != nil {
		return nil, false, err
	}
	priv, ok := scalar(b[:abi.PrivateKeyLen])
	clear(b)
	return priv, ok, nil
}

// KeypairXOnlyPub writes the even-Y public key and, if parity is not null,
// whether the full key had odd Y.
func (c *Core) KeypairXOnlyPub(_ context.Context, ctx abi.ContextAddr, pk abi.XOnlyKeyAddr, parity abi.BufferAddr, kp abi.KeypairAddr) (abi.Result, error) {
	if err := c.enter("keypair_xonly_pub"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("keypair_xonly_pub", ctx); err != nil {
		return abi.Failure, err
	}

	out, err := c.heap.View(pk.Offset(), abi.XOnlyKeyLen)
	if err != nil {
		return abi.Failure, err
	}

	priv, ok, err := c.keypair(kp)
	if err != nil {
		return abi.Failure, err
	}
	if !ok {
		clear(out)
		return abi.Failure, nil
	}

	pub := priv.PubKey()
	even, err := schnorr.ParsePubKey(schnorr.SerializePubKey(pub))
	if err != nil {
		clear(out)
		return abi.Failure, nil
	}
	copy(out, point(even))

	if !parity.IsNull() {
		odd := uint32(0)
		if pub.SerializeCompressed()[0] == 0x03 {
			odd = 1
		}
		if err := c.heap.SetU32(parity.Offset(), odd); err != nil {
			return abi.Failure, err
		}
	}
	return abi.Success, nil
}

// XOnlyPubkeyParse parses a 32-byte x coordinate. On failure pk is zeroed.
func (c *Core) XOnlyPubkeyParse(_ context.Context, ctx abi.ContextAddr, pk abi.XOnlyKeyAddr, in abi.BufferAddr) (abi.Result, error) {
	if err := c.enter("xonly_pubkey_parse"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("xonly_pubkey_parse", ctx); err != nil {
		return abi.Failure, err
	}

	x, err := c.heap.Slice(in.Offset(), abi.XOnlyPubkeyLen)
	if err != nil {
		return abi.Failure, err
	}
	out, err := c.heap.View(pk.Offset(), abi.XOnlyKeyLen)
	if err != nil {
		return abi.Failure, err
	}

	pub, err := schnorr.ParsePubKey(x)
	if err != nil {
		clear(out)
		return abi.Failure, nil
	}
	copy(out, point(pub))
	return abi.Success, nil
}

// XOnlyPubkeySerialize writes the 32-byte x coordinate of pk.
func (c *Core) XOnlyPubkeySerialize(_ context.Context, ctx abi.ContextAddr, out abi.BufferAddr, pk abi.XOnlyKeyAddr) (abi.Result, error) {
	if err := c.enter("xonly_pubkey_serialize"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("xonly_pubkey_serialize", ctx); err != nil {
		return abi.Failure, err
	}

	raw, err := c.heap.Slice(pk.Offset(), abi.XOnlyKeyLen)
	if err != nil {
		return abi.Failure, err
	}
	dst, err := c.heap.View(out.Offset(), abi.XOnlyPubkeyLen)
	if err != nil {
		return abi.Failure, err
	}

	pub, err := parsePoint(raw)
	if err != nil {
		clear(dst)
		return abi.Failure, nil
	}
	copy(dst, schnorr.SerializePubKey(pub))
	return abi.Success, nil
}

// SchnorrSign32 signs a 32-byte message with BIP-340, using aux as the
// auxiliary randomness.
func (c *Core) SchnorrSign32(_ context.Context, ctx abi.ContextAddr, sig abi.SignatureAddr, msg abi.BufferAddr, kp abi.KeypairAddr, aux abi.BufferAddr) (abi.Result, error) {
	if err := c.enter("schnorrsig_sign32"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("schnorrsig_sign32", ctx); err != nil {
		return abi.Failure, err
	}

	m, err := c.heap.Slice(msg.Offset(), abi.MessageHashLen)
	if err != nil {
		return abi.Failure, err
	}
	auxBytes, err := c.heap.Slice(aux.Offset(), abi.EntropyLen)
	if err != nil {
		return abi.Failure, err
	}
	out, err := c.heap.View(sig.Offset(), abi.SignatureLen)
	if err != nil {
		return abi.Failure, err
	}

	priv, ok, err := c.keypair(kp)
	if err != nil {
		return abi.Failure, err
	}
	if !ok {
		clear(out)
		return abi.Failure, nil
	}

	var nonce [32]byte
	copy(nonce[:], auxBytes)
	s, err := schnorr.Sign(priv, m, schnorr.CustomNonce(nonce))
	if err != nil {
		clear(out)
		return abi.Failure, nil
	}
	copy(out, s.Serialize())
	return abi.Success, nil
}

// SchnorrVerify checks a BIP-340 signature. Only 32-byte messages verify.
func (c *Core) SchnorrVerify(_ context.Context, ctx abi.ContextAddr, sig abi.SignatureAddr, msg abi.BufferAddr, msgLen uint32, pk abi.XOnlyKeyAddr) (abi.Result, error) {
	if err := c.enter("schnorrsig_verify"); err != nil {
		return abi.Failure, err
	}
	if err := c.checkContext("schnorrsig_verify", ctx); err != nil {
		return abi.Failure, err
	}

	sigBytes, err := c.heap.Slice(sig.Offset(), abi.SignatureLen)
	if err != nil {
		return abi.Failure, err
	}
	m, err := c.heap.Slice(msg.Offset(), msgLen)
	if err != nil {
		return abi.Failure, err
	}
	raw, err := c.heap.Slice(pk.Offset(), abi.XOnlyKeyLen)
	if err != nil {
		return abi.Failure, err
	}

	if msgLen != abi.MessageHashLen {
		return abi.Failure, nil
	}
	pub, err := parsePoint(raw)
	if err != nil {
		return abi.Failure, nil
	}
	s, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return abi.Failure, nil
	}
	if !s.Verify(m, pub) {
		return abi.Failure, nil
	}
	return abi.Success, nil
}

// SHA256Initialize starts a hash at st.
func (c *Core) SHA256Initialize(_ context.Context, st abi.HashStateAddr) error {
	if err := c.enter("sha256_initialize"); err != nil {
		return err
	}
	if err := c.heap.Fill(st.Offset(), abi.SHA256StateLen, 0); err != nil {
		return err
	}

	c.mu.Lock()
	c.hashes[st.Offset()] = sha256.New()
	c.mu.Unlock()
	return nil
}

func (c *Core) hashAt(name string, st abi.HashStateAddr) (hash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[st.Offset()]
	if !ok {
		return nil, errors.CallFailed(name, "hash state was not initialized")
	}
	return h, nil
}

// SHA256Write feeds n bytes at data into st.
func (c *Core) SHA256Write(_ context.Context, st abi.HashStateAddr, data abi.BufferAddr, n uint32) error {
	if err := c.enter("sha256_write"); err != nil {
		return err
	}
	h, err := c.hashAt("sha256_write", st)
	if err != nil {
		return err
	}
	b, err := c.heap.View(data.Offset(), n)
	if err != nil {
		return err
	}
	h.Write(b)
	return nil
}

// SHA256Finalize writes the digest of st to out and clears st.
func (c *Core) SHA256Finalize(_ context.Context, st abi.HashStateAddr, out abi.BufferAddr) error {
	if err := c.enter("sha256_finalize"); err != nil {
		return err
	}
	h, err := c.hashAt("sha256_finalize", st)
	if err != nil {
		return err
	}
	if err := c.heap.Set(out.Offset(), h.Sum(nil)); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.hashes, st.Offset())
	c.mu.Unlock()
	return nil
}
