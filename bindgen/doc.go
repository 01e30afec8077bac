// Package bindgen derives the bindings tables from the JS glue emscripten emits
// next to a compiled module.
//
// The glue is parsed, never executed. Parse walks the top level of the script
// and picks up:
//
//   - the wasmImports object literal, mapping glue functions to import symbols
//   - the object that wraps wasmImports, whose key is the import namespace
//   - wasmExports["x"] assignments, mapping glue names to export symbols
//   - the wasmExports call inside initRuntime, which is the static initializer
//   - the constant results of the _fd_seek and _fd_close stubs
//
// Generate renders the result as Go source for package bindings. Missing
// exports and imports the host cannot satisfy fail here, at build time.
package bindgen
