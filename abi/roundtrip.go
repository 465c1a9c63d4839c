package abi

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-rewind/rawval"
)

// WidthOf returns the flat payload width in bits of a scalar WIT type.
func WidthOf(t wit.Type) uint8 {
	switch t := t.(type) {
	case wit.U64, wit.S64, wit.F64:
		return 64
	case *wit.TypeDef:
		if inner, ok := t.Kind.(wit.Type); ok {
			return WidthOf(inner)
		}
	}
	return 32
}

// Roundtrip reconstructs the canonical typed value for v under t and
// re-flattens it. Lifting interprets only the meaningful payload bits and
// lowering writes back a fully defined slot, so any leftover bits from a
// previous use of the storage are zeroed as a side effect. This is the
// canonicalizer's fallback when the payload width alone is ambiguous.
func Roundtrip(v rawval.Value, t wit.Type) rawval.Value {
	switch t := t.(type) {
	case wit.Bool:
		if v.Bits()&0xff != 0 {
			return rawval.I32(1)
		}
		return rawval.I32(0)
	case wit.U8:
		return rawval.I32(uint32(uint8(v.Bits())))
	case wit.S8:
		return rawval.I32(uint32(int32(int8(v.Bits()))))
	case wit.U16:
		return rawval.I32(uint32(uint16(v.Bits())))
	case wit.S16:
		return rawval.I32(uint32(int32(int16(v.Bits()))))
	case wit.U32, wit.S32, wit.Char:
		return rawval.I32(uint32(v.Bits()))
	case wit.U64, wit.S64:
		return rawval.I64(v.Bits())
	case wit.F32:
		return rawval.F32(v.Float32())
	case wit.F64:
		return rawval.F64(v.Float64())
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.Enum, *wit.Flags:
			return rawval.I32(uint32(v.Bits()))
		case wit.Type:
			return Roundtrip(v, kind)
		}
	}
	// No type-directed lift available: canonicalize by declared width.
	return rawval.Make(v.Kind(), v.Bits())
}
