// Package secp256k1 is the key, signing and verification facade over the
// compiled libsecp256k1 module.
//
// A Facade allocates its scratch regions and one sign-and-verify context once,
// then reuses them for every call. Secret keys are copied into module memory
// only for the duration of a single operation: on every exit path the private
// key region is overwritten with abi.WipedKeyByte and the keypair region with
// abi.WipedKeypairByte.
//
// The context is re-randomized before every operation that touches a secret
// key. Verification uses no secret and does not re-randomize.
//
// Operations on one Facade are serialized with a mutex. For parallel use,
// create one Facade (and one module instance) per goroutine.
package secp256k1
