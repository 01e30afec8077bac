// Package wasmtest assembles small core modules with the import and export
// surface of the secp256k1 build, for loader and facade tests.
//
// Every export gets a default body: init bumps a counter word in memory,
// malloc is a bump allocator, functions with a result return 1 and void
// functions do nothing. Tests replace bodies to drive specific paths.
package wasmtest

import (
	"bytes"

	"github.com/wippyai/nostr-wasm/bindings"
)

const (
	// InitCounterAddr is the word init increments on every call.
	InitCounterAddr = 16
	// HeapBase is where the bump allocator starts.
	HeapBase = 1024
	// ContextAddr is what the default context_create returns.
	ContextAddr = 64
	// Pages is the initial memory size.
	Pages = 2
)

const (
	opEnd       = 0x0b
	opCall      = 0x10
	opDrop      = 0x1a
	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load   = 0x28
	opI32Store  = 0x36
	opI32Store8 = 0x3a
	opI32Const  = 0x41
	opI32Add    = 0x6a
	opI32And    = 0x71

	valI32   = 0x7f
	funcType = 0x60

	kindFunc   = 0x00
	kindMemory = 0x02

	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
)

// Module is a secp256k1-shaped module under construction.
type Module struct {
	Imports bindings.ImportTable
	Exports bindings.ExportTable

	bodies  map[string][]byte
	omitted map[string]bool
}

// New returns a module using the committed binding tables.
func New() *Module {
	return &Module{
		Imports: bindings.Imports,
		Exports: bindings.Exports,
		bodies:  make(map[string][]byte),
		omitted: make(map[string]bool),
	}
}

// Set replaces the body of an export. The code must leave exactly the
// export's results on the stack; the trailing end is added.
func (m *Module) Set(name string, code ...[]byte) *Module {
	m.bodies[name] = bytes.Join(code, nil)
	return m
}

// Omit leaves an export out of the binary.
func (m *Module) Omit(name string) *Module {
	m.omitted[name] = true
	return m
}

// Const pushes an i32 constant.
func Const(v int32) []byte {
	return append([]byte{opI32Const}, sleb(v)...)
}

// Store8 writes one byte at a constant address.
func Store8(addr uint32, v byte) []byte {
	out := Const(int32(addr))
	out = append(out, Const(int32(v))...)
	return append(out, opI32Store8, 0x00, 0x00)
}

// Param pushes a parameter.
func Param(i uint32) []byte {
	return append([]byte{opLocalGet}, uleb(i)...)
}

// Call calls an import by stable name with constant arguments and drops its
// result, if any.
func Call(name string, args ...int32) []byte {
	var out []byte
	for _, a := range args {
		out = append(out, Const(a)...)
	}
	out = append(out, opCall)
	out = append(out, uleb(importIndex(name))...)
	if sig, _ := bindings.SignatureOf(name); sig.Results > 0 {
		out = append(out, opDrop)
	}
	return out
}

func importIndex(name string) uint32 {
	for i, s := range (bindings.ImportTable{}).Functions() {
		if s.Name == name {
			return uint32(i)
		}
	}
	panic("wasmtest: unknown import " + name)
}

func (m *Module) defaultBody(name string) []byte {
	switch name {
	case "init":
		var b []byte
		b = append(b, Const(InitCounterAddr)...)
		b = append(b, Const(InitCounterAddr)...)
		b = append(b, opI32Load, 0x02, 0x00)
		b = append(b, Const(1)...)
		b = append(b, opI32Add)
		b = append(b, opI32Store, 0x02, 0x00)
		return b
	case "malloc":
		// old top stays on the stack as the result
		var b []byte
		b = append(b, opGlobalGet, 0x00)
		b = append(b, opGlobalGet, 0x00)
		b = append(b, Param(0)...)
		b = append(b, opI32Add)
		b = append(b, Const(7)...)
		b = append(b, opI32Add)
		b = append(b, Const(-8)...)
		b = append(b, opI32And)
		b = append(b, opGlobalSet, 0x00)
		return b
	case "context_create":
		return Const(ContextAddr)
	}
	if sig, _ := bindings.SignatureOf(name); sig.Results > 0 {
		return Const(1)
	}
	return nil
}

type function struct {
	symbol string
	sig    bindings.Signature
	body   []byte
}

// Binary encodes the module.
func (m *Module) Binary() []byte {
	var types []bindings.Signature
	typeIndex := func(s bindings.Signature) uint32 {
		for i, t := range types {
			if t == s {
				return uint32(i)
			}
		}
		types = append(types, s)
		return uint32(len(types) - 1)
	}

	imports := m.Imports.Functions()
	importTypes := make([]uint32, len(imports))
	for i, imp := range imports {
		sig, _ := bindings.SignatureOf(imp.Name)
		importTypes[i] = typeIndex(sig)
	}

	var funcs []function
	for _, exp := range m.Exports.Functions() {
		if m.omitted[exp.Name] {
			continue
		}
		sig, _ := bindings.SignatureOf(exp.Name)
		body, ok := m.bodies[exp.Name]
		if !ok {
			body = m.defaultBody(exp.Name)
		}
		typeIndex(sig)
		funcs = append(funcs, function{symbol: exp.Symbol, sig: sig, body: body})
	}

	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var sec bytes.Buffer
	sec.Write(uleb(uint32(len(types))))
	for _, t := range types {
		sec.WriteByte(funcType)
		writeI32s(&sec, t.Params)
		writeI32s(&sec, t.Results)
	}
	section(&out, secType, &sec)

	sec.Write(uleb(uint32(len(imports))))
	for i, imp := range imports {
		writeName(&sec, m.Imports.Module)
		writeName(&sec, imp.Symbol)
		sec.WriteByte(kindFunc)
		sec.Write(uleb(importTypes[i]))
	}
	section(&out, secImport, &sec)

	sec.Write(uleb(uint32(len(funcs))))
	for _, f := range funcs {
		sec.Write(uleb(typeIndex(f.sig)))
	}
	section(&out, secFunction, &sec)

	sec.Write([]byte{0x01, 0x00})
	sec.Write(uleb(Pages))
	section(&out, secMemory, &sec)

	sec.Write([]byte{0x01, valI32, 0x01})
	sec.Write(Const(HeapBase))
	sec.WriteByte(opEnd)
	section(&out, secGlobal, &sec)

	exports := 0
	if !m.omitted["memory"] {
		exports++
	}
	sec.Write(uleb(uint32(exports + len(funcs))))
	if !m.omitted["memory"] {
		writeName(&sec, m.Exports.Memory)
		sec.WriteByte(kindMemory)
		sec.Write(uleb(0))
	}
	for i, f := range funcs {
		writeName(&sec, f.symbol)
		sec.WriteByte(kindFunc)
		sec.Write(uleb(uint32(len(imports) + i)))
	}
	section(&out, secExport, &sec)

	sec.Write(uleb(uint32(len(funcs))))
	for _, f := range funcs {
		var body bytes.Buffer
		body.WriteByte(0x00) // no locals
		body.Write(f.body)
		body.WriteByte(opEnd)
		sec.Write(uleb(uint32(body.Len())))
		sec.Write(body.Bytes())
	}
	section(&out, secCode, &sec)

	return out.Bytes()
}

func section(out *bytes.Buffer, id byte, sec *bytes.Buffer) {
	out.WriteByte(id)
	out.Write(uleb(uint32(sec.Len())))
	out.Write(sec.Bytes())
	sec.Reset()
}

func writeName(w *bytes.Buffer, s string) {
	w.Write(uleb(uint32(len(s))))
	w.WriteString(s)
}

func writeI32s(w *bytes.Buffer, n int) {
	w.Write(uleb(uint32(n)))
	for i := 0; i < n; i++ {
		w.WriteByte(valI32)
	}
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}
