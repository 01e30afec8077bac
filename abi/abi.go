// Package abi describes the fixed binary contract with the compiled secp256k1 module:
// tagged linear-memory addresses, region sizes, context flags and result codes.
package abi

// Address is an offset into the module's linear memory. The type parameter tags
// what the region holds so unrelated regions cannot be mixed up; at runtime it
// is a plain 32-bit offset.
type Address[T any] uint32

// Offset returns the raw linear-memory offset.
func (a Address[T]) Offset() uint32 { return uint32(a) }

// IsNull reports whether the address is the null pointer.
func (a Address[T]) IsNull() bool { return a == 0 }

// Region tags. They are never instantiated.
type (
	context   struct{}
	keypair   struct{}
	xonlyKey  struct{}
	signature struct{}
	hashState struct{}
	seed      struct{}
	buffer    struct{}
)

type (
	// ContextAddr points at a module-side secp256k1_context.
	ContextAddr = Address[context]
	// KeypairAddr points at an opaque 96-byte secp256k1_keypair.
	KeypairAddr = Address[keypair]
	// XOnlyKeyAddr points at an opaque 64-byte secp256k1_xonly_pubkey.
	XOnlyKeyAddr = Address[xonlyKey]
	// SignatureAddr points at a 64-byte BIP-340 signature.
	SignatureAddr = Address[signature]
	// HashStateAddr points at a 104-byte secp256k1_sha256 state.
	HashStateAddr = Address[hashState]
	// SeedAddr points at 32 bytes of context randomization seed.
	SeedAddr = Address[seed]
	// BufferAddr points at plain bytes (keys, hashes, entropy, messages).
	BufferAddr = Address[buffer]
)

// Null is the null pointer for optional arguments.
const Null = 0

// Byte lengths of every region the host exchanges with the module.
const (
	PrivateKeyLen   = 32
	KeypairLen      = 96 // secp256k1_keypair { unsigned char data[96]; }
	XOnlyKeyLen     = 64 // secp256k1_xonly_pubkey { unsigned char data[64]; }
	XOnlyPubkeyLen  = 32 // serialized
	SignatureLen    = 64
	MessageHashLen  = 32
	EntropyLen      = 32
	RandomSeedLen   = 32
	SHA256StateLen  = 4*8 + 64 + 8 // uint32_t s[8]; unsigned char buf[64]; uint64_t bytes;
	SHA256DigestLen = 32
)

// Flags is the bit-packed argument of context_create.
type Flags uint32

const (
	FlagTypeContext      Flags = 1 << 0
	FlagBitVerify        Flags = 1 << 8
	FlagBitSign          Flags = 1 << 9
	FlagBitDeclassify    Flags = 1 << 10
	ContextNone                = FlagTypeContext
	ContextVerify              = FlagTypeContext | FlagBitVerify
	ContextSign                = FlagTypeContext | FlagBitSign
	ContextDeclassify          = FlagTypeContext | FlagBitDeclassify
	ContextSignAndVerify       = ContextSign | ContextVerify
)

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Result is the return code convention of fallible module calls.
type Result uint32

const (
	Failure Result = 0
	Success Result = 1
)

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r == Success }

// Filler bytes written over secret regions after use. They differ from each
// other and from zero so a wiped region is distinguishable from a cleared one.
const (
	WipedKeyByte     byte = 0x01
	WipedKeypairByte byte = 0x02
)
