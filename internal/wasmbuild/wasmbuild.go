// Package wasmbuild emits minimal core wasm binaries for tests: a guest
// with a handful of imports, a linear memory, and short exported function
// bodies is enough to exercise recording and replay end to end without
// checking binary fixtures into the tree.
package wasmbuild

// Value types.
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
	F32 byte = 0x7D
	F64 byte = 0x7C
)

// FuncType is a core function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

// Import declares one host function import.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is one defined function. A non-empty Export name exports it.
// Body holds the instruction stream without the trailing end opcode.
type Func struct {
	Export string
	Type   FuncType
	Body   []byte
}

// Module describes a guest to emit. Function indices follow wasm rules:
// imports first in declaration order, then defined functions.
type Module struct {
	Imports []Import
	Funcs   []Func
	// MemoryPages declares a linear memory of that many 64KiB pages,
	// exported as "memory". Zero means no memory.
	MemoryPages uint32
}

// Encode produces the binary. Types are emitted one per function without
// deduplication, which is valid and keeps index bookkeeping trivial.
func (m *Module) Encode() []byte {
	buf := &buffer{}
	buf.raw(0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00) // magic + version

	m.typeSection(buf)
	if len(m.Imports) > 0 {
		m.importSection(buf)
	}
	if len(m.Funcs) > 0 {
		m.funcSection(buf)
	}
	if m.MemoryPages > 0 {
		m.memorySection(buf)
	}
	m.exportSection(buf)
	if len(m.Funcs) > 0 {
		m.codeSection(buf)
	}
	return buf.bytes
}

func (m *Module) typeSection(buf *buffer) {
	sec := &buffer{}
	sec.u32(uint32(len(m.Imports) + len(m.Funcs)))
	for _, imp := range m.Imports {
		writeFuncType(sec, imp.Type)
	}
	for _, fn := range m.Funcs {
		writeFuncType(sec, fn.Type)
	}
	section(buf, 1, sec)
}

func (m *Module) importSection(buf *buffer) {
	sec := &buffer{}
	sec.u32(uint32(len(m.Imports)))
	for i, imp := range m.Imports {
		sec.name(imp.Module)
		sec.name(imp.Name)
		sec.raw(0x00) // func import
		sec.u32(uint32(i))
	}
	section(buf, 2, sec)
}

func (m *Module) funcSection(buf *buffer) {
	sec := &buffer{}
	sec.u32(uint32(len(m.Funcs)))
	for i := range m.Funcs {
		sec.u32(uint32(len(m.Imports) + i))
	}
	section(buf, 3, sec)
}

func (m *Module) memorySection(buf *buffer) {
	sec := &buffer{}
	sec.u32(1)
	sec.raw(0x00) // min only
	sec.u32(m.MemoryPages)
	section(buf, 5, sec)
}

func (m *Module) exportSection(buf *buffer) {
	var exported []int
	for i, fn := range m.Funcs {
		if fn.Export != "" {
			exported = append(exported, i)
		}
	}
	count := len(exported)
	if m.MemoryPages > 0 {
		count++
	}
	if count == 0 {
		return
	}

	sec := &buffer{}
	sec.u32(uint32(count))
	if m.MemoryPages > 0 {
		sec.name("memory")
		sec.raw(0x02) // memory export
		sec.u32(0)
	}
	for _, i := range exported {
		sec.name(m.Funcs[i].Export)
		sec.raw(0x00) // func export
		sec.u32(uint32(len(m.Imports) + i))
	}
	section(buf, 7, sec)
}

func (m *Module) codeSection(buf *buffer) {
	sec := &buffer{}
	sec.u32(uint32(len(m.Funcs)))
	for _, fn := range m.Funcs {
		body := &buffer{}
		body.u32(0) // no local declarations
		body.raw(fn.Body...)
		body.raw(0x0B) // end
		sec.u32(uint32(len(body.bytes)))
		sec.raw(body.bytes...)
	}
	section(buf, 10, sec)
}

func writeFuncType(buf *buffer, t FuncType) {
	buf.raw(0x60)
	buf.u32(uint32(len(t.Params)))
	buf.raw(t.Params...)
	buf.u32(uint32(len(t.Results)))
	buf.raw(t.Results...)
}

func section(buf *buffer, id byte, content *buffer) {
	buf.raw(id)
	buf.u32(uint32(len(content.bytes)))
	buf.raw(content.bytes...)
}

type buffer struct {
	bytes []byte
}

func (b *buffer) raw(v ...byte) {
	b.bytes = append(b.bytes, v...)
}

// u32 writes unsigned LEB128 encoding.
func (b *buffer) u32(v uint32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		b.bytes = append(b.bytes, byt)
		if v == 0 {
			break
		}
	}
}

// i32 writes signed LEB128 encoding.
func (b *buffer) i32(v int32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.bytes = append(b.bytes, byt)
			break
		}
		b.bytes = append(b.bytes, byt|0x80)
	}
}

func (b *buffer) name(s string) {
	b.u32(uint32(len(s)))
	b.bytes = append(b.bytes, s...)
}
