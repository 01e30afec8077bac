// Package shim implements the host imports a headless emscripten build of
// libsecp256k1 needs to run: abort, bulk copy, heap-growth refusal and a
// buffered write to two diagnostic channels, plus fixed results for the file
// seek and close stubs.
//
// The shim is engine-agnostic. Each import is a plain method returning an error
// for fatal conditions; the loader turns those errors into traps when it wires
// the methods into a wazero host module.
//
// Channel 1 text is logged at Debug, channel 2 text at Error and kept as the
// last error for Abort. Any other channel is a fatal error.
package shim
