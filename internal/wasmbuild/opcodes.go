package wasmbuild

// Instrs concatenates instruction fragments into a function body.
func Instrs(parts ...[]byte) []byte {
	var body []byte
	for _, p := range parts {
		body = append(body, p...)
	}
	return body
}

// LocalGet pushes a local.
func LocalGet(index uint32) []byte {
	b := &buffer{}
	b.raw(0x20)
	b.u32(index)
	return b.bytes
}

// I32Const pushes a constant.
func I32Const(v int32) []byte {
	b := &buffer{}
	b.raw(0x41)
	b.i32(v)
	return b.bytes
}

// Call invokes a function by index (imports precede defined functions).
func Call(index uint32) []byte {
	b := &buffer{}
	b.raw(0x10)
	b.u32(index)
	return b.bytes
}

// Drop discards the top of the stack.
func Drop() []byte {
	return []byte{0x1A}
}

// I32Load8U loads one byte from memory at [addr + offset].
func I32Load8U(offset uint32) []byte {
	b := &buffer{}
	b.raw(0x2D)
	b.u32(0) // alignment
	b.u32(offset)
	return b.bytes
}

// I32Store stores an i32 to memory at [addr + offset].
func I32Store(offset uint32) []byte {
	b := &buffer{}
	b.raw(0x36)
	b.u32(2) // alignment
	b.u32(offset)
	return b.bytes
}

// I32Add adds the top two stack values.
func I32Add() []byte {
	return []byte{0x6A}
}
