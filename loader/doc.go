// Package loader instantiates the compiled secp256k1 module on wazero.
//
// Load reads the binary from a Source, registers the shim under the import
// names in bindings.Imports, binds the exported memory and runs the static
// initializer exactly once. The returned Instance exposes every export in
// bindings.Exports as a typed method.
//
// # Sources
//
// Raw bytes and readers are compiled directly. Responses, resolved or pending,
// take the response path: the status must be 2xx and the Content-Type, when
// present, must be application/wasm.
//
// # Fatal errors
//
// Shim failures (abort, resize, unknown channel) trap the running export.
// After the first trap the instance is poisoned and every later call fails
// with errors.ErrPoisoned wrapping the original cause.
package loader
