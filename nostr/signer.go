package nostr

import (
	"bytes"
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/nostr-wasm/abi"
	"github.com/wippyai/nostr-wasm/errors"
)

// Operation names used in errors.
const (
	OpFinalize = "finalize event"
	OpVerify   = "verify event"
)

// Crypto is the part of the secp256k1 facade events need.
// *secp256k1.Facade implements it.
type Crypto interface {
	PublicKey(ctx context.Context, sk []byte) ([]byte, error)
	Sign(ctx context.Context, sk, hash, entropy []byte) ([]byte, error)
	Verify(ctx context.Context, sig, hash, pk []byte) (bool, error)
	SHA256(ctx context.Context, data []byte) ([]byte, error)
}

// Signer finalizes and verifies events.
type Signer struct {
	crypto Crypto
	logger *zap.Logger
}

// NewSigner returns a Signer over c. A nil logger disables logging.
func NewSigner(c Crypto, logger *zap.Logger) *Signer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signer{crypto: c, logger: logger}
}

// ComputeID returns the SHA-256 of the canonical serialization of ev.
func (s *Signer) ComputeID(ctx context.Context, ev *Event) ([]byte, error) {
	return s.crypto.SHA256(ctx, ev.Canonical(nil))
}

// Finalize fills in the pubkey, id and sig of ev. A nil entropy signs with
// fresh random bytes. On error ev is left unchanged.
func (s *Signer) Finalize(ctx context.Context, ev *Event, sk, entropy []byte) error {
	pk, err := s.crypto.PublicKey(ctx, sk)
	if err != nil {
		return err
	}

	next := *ev
	next.PubKey = EncodeHex(pk)
	id, err := s.ComputeID(ctx, &next)
	if err != nil {
		return err
	}

	sig, err := s.crypto.Sign(ctx, sk, id, entropy)
	if err != nil {
		return err
	}

	next.ID = EncodeHex(id)
	next.Sig = EncodeHex(sig)
	*ev = next

	s.logger.Debug("event finalized",
		zap.String("id", next.ID),
		zap.Int("kind", next.Kind),
	)
	return nil
}

// Verify checks that the id of ev matches its content and that sig is a
// valid signature of the id under pubkey. It returns nil for a valid event.
func (s *Signer) Verify(ctx context.Context, ev *Event) error {
	id, err := DecodeHex(OpVerify, "id", ev.ID, abi.MessageHashLen)
	if err != nil {
		return err
	}

	computed, err := s.ComputeID(ctx, ev)
	if err != nil {
		return err
	}
	if !bytes.Equal(id, computed) {
		return errors.IDMismatch(OpVerify)
	}

	pk, err := DecodeHex(OpVerify, "pubkey", ev.PubKey, abi.XOnlyPubkeyLen)
	if err != nil {
		return err
	}
	sig, err := DecodeHex(OpVerify, "sig", ev.Sig, abi.SignatureLen)
	if err != nil {
		return err
	}

	ok, err := s.crypto.Verify(ctx, sig, id, pk)
	if stderrors.Is(err, errors.ErrInvalidPublicKey) {
		return errors.New(errors.PhaseEvent, errors.KindInvalidPublicKey).
			Op(OpVerify).
			Detail("pubkey is invalid").
			Cause(err).
			Build()
	}
	if err != nil {
		return err
	}
	if !ok {
		return errors.SignatureInvalid(OpVerify)
	}
	return nil
}
