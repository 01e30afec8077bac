// Package memory binds a module's linear memory and exposes it as a byte view
// and a 32-bit word view.
//
// A Heap is the only place in the library that touches raw offsets. Views are
// derived from the Region once at Bind time and must be re-derived with Rebind
// whenever the module replaces its memory. The crypto module never grows its
// memory (the runtime shim refuses every resize), so in practice Rebind runs once
// after instantiation, but the hook is kept for modules that do.
//
//	heap := memory.Bind(mod.Memory())
//	if err := heap.Set(ptr, key); err != nil { ... }
//	defer heap.Fill(ptr, 32, 0x01)
package memory
