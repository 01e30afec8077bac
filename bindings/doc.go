// Package bindings holds the import and export symbol tables of the compiled
// secp256k1 module.
//
// emscripten minifies import and export names, and they change between builds.
// The tables in wasm_gen.go are produced from the build's JS glue by
// cmd/bindgen, so the rest of the library refers to stable field names only.
//
//go:generate go run ../cmd/bindgen --glue ../build/secp256k1.js --out wasm_gen.go --package bindings
package bindings
