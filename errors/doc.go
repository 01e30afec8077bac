// Package errors provides structured error types for the nostr-wasm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the failing operation, a human-readable detail and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCrypto, errors.KindInvalidSecretKey).
//		Op("sk_to_pk").
//		Detail("invalid private key").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidSecretKey("BIP-340 sign")
//	err := errors.UnknownChannel(3, text)
//
// Every Kind has a sentinel (ErrInvalidSecretKey, ErrAborted, ...) that matches any
// *Error of that Kind, so callers can branch with the standard errors.Is:
//
//	if errors.Is(err, errors.ErrInvalidPublicKey) { ... }
package errors
