package secp256k1

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"lukechampine.com/frand"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/memory"
)

// Operation names used in errors and observer reports.
const (
	OpGenerate = "generate_secret_key"
	OpPubkey   = "sk_to_pk"
	OpSign     = "BIP-340 sign"
	OpVerify   = "BIP-340 verify"
	OpSHA256   = "sha256"
)

// minMessageBuffer is the smallest message buffer SHA256 allocates.
const minMessageBuffer = 256

// Facade owns the scratch regions and context of one module instance.
type Facade struct {
	core     Core
	heap     *memory.Heap
	logger   *zap.Logger
	observer Observer
	random   io.Reader

	mu sync.Mutex

	context abi.ContextAddr
	sk      abi.BufferAddr
	entropy abi.BufferAddr
	seed    abi.SeedAddr
	msg     abi.BufferAddr
	pubkey  abi.BufferAddr
	sig     abi.SignatureAddr
	keypair abi.KeypairAddr
	xonly   abi.XOnlyKeyAddr
	state   abi.HashStateAddr
	digest  abi.BufferAddr

	// grown on demand by SHA256
	buf    abi.BufferAddr
	bufCap uint32
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the facade logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(f *Facade) { f.observer = o }
}

// WithRandom replaces the random source for secret keys, default entropy and
// context seeds. The default is frand.
func WithRandom(r io.Reader) Option {
	return func(f *Facade) {
		if r != nil {
			f.random = r
		}
	}
}

// New allocates the scratch regions in core and creates a context able to
// sign and verify.
func New(ctx context.Context, core Core, opts ...Option) (*Facade, error) {
	f := &Facade{
		core:   core,
		heap:   core.Heap(),
		logger: zap.NewNop(),
		random: frand.Reader,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.heap == nil {
		return nil, errors.NotInitialized(errors.PhaseCrypto, "module memory")
	}

	regions := []struct {
		addr *abi.BufferAddr
		size uint32
	}{
		{&f.sk, abi.PrivateKeyLen},
		{&f.entropy, abi.EntropyLen},
		{(*abi.BufferAddr)(&f.seed), abi.RandomSeedLen},
		{&f.msg, abi.MessageHashLen},
		{&f.pubkey, abi.XOnlyPubkeyLen},
		{(*abi.BufferAddr)(&f.sig), abi.SignatureLen},
		{(*abi.BufferAddr)(&f.keypair), abi.KeypairLen},
		{(*abi.BufferAddr)(&f.xonly), abi.XOnlyKeyLen},
		{(*abi.BufferAddr)(&f.state), abi.SHA256StateLen},
		{&f.digest, abi.SHA256DigestLen},
	}
	for _, r := range regions {
		addr, err := core.Malloc(ctx, r.size)
		if err != nil {
			return nil, err
		}
		*r.addr = addr
	}

	c, err := core.ContextCreate(ctx, abi.ContextSignAndVerify)
	if err != nil {
		return nil, err
	}
	f.context = c

	f.logger.Debug("facade ready",
		zap.Uint32("context", c.Offset()),
		zap.Uint32("sk", f.sk.Offset()),
		zap.Uint32("keypair", f.keypair.Offset()),
	)
	return f, nil
}

func (f *Facade) observe(op string, start time.Time, err error) {
	if f.observer != nil {
		f.observer.Observe(op, time.Since(start), err)
	}
}

func (f *Facade) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(f.random, b); err != nil {
		return nil, errors.Wrap(errors.PhaseCrypto, errors.KindCallFailed, err, "read random bytes")
	}
	return b, nil
}

func checkLen(op, what string, b []byte, want int) error {
	if len(b) != want {
		return errors.InvalidLength(errors.PhaseCrypto, op, what, want, len(b))
	}
	return nil
}

// randomize reseeds the context from fresh random bytes.
func (f *Facade) randomize(ctx context.Context, op string) error {
	seed, err := f.randomBytes(abi.RandomSeedLen)
	if err != nil {
		return err
	}
	if err := f.heap.Set(f.seed.Offset(), seed); err != nil {
		return err
	}

	res, err := f.core.ContextRandomize(ctx, f.context, f.seed)
	if err != nil {
		return err
	}
	if !res.OK() {
		f.logger.Warn("context randomization rejected", zap.String("op", op))
		return errors.CallFailed(op, "failed to randomize context")
	}
	return nil
}

// withKeypair copies sk into the key region, derives the keypair and runs fn.
// Both regions are overwritten when it returns, whatever the outcome.
func (f *Facade) withKeypair(ctx context.Context, op string, sk []byte, fn func() error) error {
	defer f.wipe(op)

	if err := f.heap.Set(f.sk.Offset(), sk); err != nil {
		return err
	}

	res, err := f.core.KeypairCreate(ctx, f.context, f.keypair, f.sk)
	if err != nil {
		return err
	}
	if !res.OK() {
		return errors.InvalidSecretKey(op)
	}
	return fn()
}

func (f *Facade) wipe(op string) {
	if err := f.heap.Fill(f.sk.Offset(), abi.PrivateKeyLen, abi.WipedKeyByte); err != nil {
		f.logger.Warn("wipe of private key region failed", zap.String("op", op), zap.Error(err))
	}
	if err := f.heap.Fill(f.keypair.Offset(), abi.KeypairLen, abi.WipedKeypairByte); err != nil {
		f.logger.Warn("wipe of keypair region failed", zap.String("op", op), zap.Error(err))
	}
}

// GenerateSecretKey returns 32 random bytes. Any 32-byte string is a
// candidate key; PublicKey rejects the rare invalid ones.
func (f *Facade) GenerateSecretKey() (sk []byte, err error) {
	start := time.Now()
	defer func() { f.observe(OpGenerate, start, err) }()

	return f.randomBytes(abi.PrivateKeyLen)
}

// PublicKey returns the 32-byte x-only public key of sk.
func (f *Facade) PublicKey(ctx context.Context, sk []byte) (pk []byte, err error) {
	start := time.Now()
	defer func() { f.observe(OpPubkey, start, err) }()

	if err := checkLen(OpPubkey, "secret key", sk, abi.PrivateKeyLen); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.randomize(ctx, OpPubkey); err != nil {
		return nil, err
	}

	err = f.withKeypair(ctx, OpPubkey, sk, func() error {
		res, err := f.core.KeypairXOnlyPub(ctx, f.context, f.xonly, abi.Null, f.keypair)
		if err != nil {
			return err
		}
		if !res.OK() {
			return errors.CallFailed(OpPubkey, "failed to derive x-only public key")
		}

		res, err = f.core.XOnlyPubkeySerialize(ctx, f.context, f.pubkey, f.xonly)
		if err != nil {
			return err
		}
		if !res.OK() {
			return errors.CallFailed(OpPubkey, "failed to serialize public key")
		}

		pk, err = f.heap.Slice(f.pubkey.Offset(), abi.XOnlyPubkeyLen)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pk, nil
}

// Sign returns the 64-byte BIP-340 signature of hash under sk. A nil entropy
// draws 32 fresh random bytes.
func (f *Facade) Sign(ctx context.Context, sk, hash, entropy []byte) (sig []byte, err error) {
	start := time.Now()
	defer func() { f.observe(OpSign, start, err) }()

	if err := checkLen(OpSign, "secret key", sk, abi.PrivateKeyLen); err != nil {
		return nil, err
	}
	if err := checkLen(OpSign, "message hash", hash, abi.MessageHashLen); err != nil {
		return nil, err
	}
	if entropy == nil {
		if entropy, err = f.randomBytes(abi.EntropyLen); err != nil {
			return nil, err
		}
	} else if err := checkLen(OpSign, "entropy", entropy, abi.EntropyLen); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.randomize(ctx, OpSign); err != nil {
		return nil, err
	}

	err = f.withKeypair(ctx, OpSign, sk, func() error {
		if err := f.heap.Set(f.msg.Offset(), hash); err != nil {
			return err
		}
		if err := f.heap.Set(f.entropy.Offset(), entropy); err != nil {
			return err
		}

		res, err := f.core.SchnorrSign32(ctx, f.context, f.sig, f.msg, f.keypair, f.entropy)
		if err != nil {
			return err
		}
		if !res.OK() {
			return errors.CallFailed(OpSign, "signing failed")
		}

		sig, err = f.heap.Slice(f.sig.Offset(), abi.SignatureLen)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// Verify reports whether sig is a valid BIP-340 signature of hash under pk.
// A bad signature is false, not an error; an unparsable pk is
// errors.ErrInvalidPublicKey.
func (f *Facade) Verify(ctx context.Context, sig, hash, pk []byte) (ok bool, err error) {
	start := time.Now()
	defer func() { f.observe(OpVerify, start, err) }()

	if err := checkLen(OpVerify, "signature", sig, abi.SignatureLen); err != nil {
		return false, err
	}
	if err := checkLen(OpVerify, "message hash", hash, abi.MessageHashLen); err != nil {
		return false, err
	}
	if err := checkLen(OpVerify, "public key", pk, abi.XOnlyPubkeyLen); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.heap.Set(f.pubkey.Offset(), pk); err != nil {
		return false, err
	}
	res, err := f.core.XOnlyPubkeyParse(ctx, f.context, f.xonly, f.pubkey)
	if err != nil {
		return false, err
	}
	if !res.OK() {
		return false, errors.InvalidPublicKey(errors.PhaseCrypto, OpVerify)
	}

	if err := f.heap.Set(f.sig.Offset(), sig); err != nil {
		return false, err
	}
	if err := f.heap.Set(f.msg.Offset(), hash); err != nil {
		return false, err
	}

	res, err = f.core.SchnorrVerify(ctx, f.context, f.sig, f.msg, abi.MessageHashLen, f.xonly)
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// SHA256 hashes data with the module's SHA-256. The message buffer is kept
// between calls and regrown when data does not fit.
func (f *Facade) SHA256(ctx context.Context, data []byte) (digest []byte, err error) {
	start := time.Now()
	defer func() { f.observe(OpSHA256, start, err) }()

	f.mu.Lock()
	defer f.mu.Unlock()

	n := uint32(len(data))
	if err := f.ensureBuffer(ctx, n); err != nil {
		return nil, err
	}
	if err := f.heap.Set(f.buf.Offset(), data); err != nil {
		return nil, err
	}

	if err := f.core.SHA256Initialize(ctx, f.state); err != nil {
		return nil, err
	}
	if n > 0 {
		if err := f.core.SHA256Write(ctx, f.state, f.buf, n); err != nil {
			return nil, err
		}
	}
	if err := f.core.SHA256Finalize(ctx, f.state, f.digest); err != nil {
		return nil, err
	}
	return f.heap.Slice(f.digest.Offset(), abi.SHA256DigestLen)
}

func (f *Facade) ensureBuffer(ctx context.Context, n uint32) error {
	if !f.buf.IsNull() && n <= f.bufCap {
		return nil
	}

	size := max(n, minMessageBuffer, 2*f.bufCap)
	if !f.buf.IsNull() {
		if err := f.core.Free(ctx, f.buf); err != nil {
			return err
		}
		f.buf, f.bufCap = abi.Null, 0
	}

	addr, err := f.core.Malloc(ctx, size)
	if err != nil {
		return err
	}
	f.buf, f.bufCap = addr, size
	f.logger.Debug("message buffer grown", zap.Uint32("size", size))
	return nil
}
