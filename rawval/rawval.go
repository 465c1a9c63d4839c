// Package rawval defines the tagged raw value representation used at the
// calling-convention boundary.
//
// A Value is a fixed-shape scalar: one of a 32-bit integer, a 64-bit
// integer, a 32-bit float, a 64-bit float, or an opaque 64-bit payload. The
// same storage slot holds different logical types across calls, so a Value
// is always canonicalized at capture time: every bit outside the active
// kind's payload width is zero. Two canonicalized Values are therefore equal
// exactly when their byte representations are equal, which is the property
// trace comparison relies on.
package rawval

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
)

// Kind identifies the active payload of a Value.
type Kind uint8

const (
	KindI32 Kind = iota
	KindI64
	KindF32
	KindF64
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindOpaque:
		return "opaque"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Width returns the payload width of the kind in bits.
func (k Kind) Width() uint8 {
	switch k {
	case KindI32, KindF32:
		return 32
	default:
		return 64
	}
}

// Value is an immutable canonicalized scalar. The zero value is a
// canonical i32 zero.
type Value struct {
	bits uint64
	kind Kind
}

// I32 returns a canonical 32-bit integer value.
func I32(v uint32) Value {
	return Value{bits: uint64(v), kind: KindI32}
}

// I64 returns a canonical 64-bit integer value.
func I64(v uint64) Value {
	return Value{bits: v, kind: KindI64}
}

// F32 returns a canonical 32-bit float value.
func F32(v float32) Value {
	return Value{bits: uint64(math.Float32bits(v)), kind: KindF32}
}

// F64 returns a canonical 64-bit float value.
func F64(v float64) Value {
	return Value{bits: math.Float64bits(v), kind: KindF64}
}

// Opaque returns a value holding raw bits with no scalar interpretation.
func Opaque(bits uint64) Value {
	return Value{bits: bits, kind: KindOpaque}
}

// Make canonicalizes raw calling-convention bits under the given kind.
// Bits outside the kind's payload width are dropped, so two logically
// equal captures compare byte-identical regardless of what the storage
// slot previously held.
func Make(kind Kind, bits uint64) Value {
	return Value{bits: Canonicalize(bits, kind.Width()), kind: kind}
}

// Canonicalize zeroes every bit of raw outside the declared payload width.
// Idempotent: Canonicalize(Canonicalize(x, w), w) == Canonicalize(x, w).
func Canonicalize(raw uint64, width uint8) uint64 {
	if width >= 64 {
		return raw
	}
	return raw & ((1 << width) - 1)
}

// Kind returns the active kind tag.
func (v Value) Kind() Kind { return v.kind }

// Bits returns the canonical payload, zero-extended to 64 bits.
func (v Value) Bits() uint64 { return v.bits }

// U32 returns the payload as a 32-bit integer.
func (v Value) U32() uint32 { return uint32(v.bits) }

// U64 returns the payload as a 64-bit integer.
func (v Value) U64() uint64 { return v.bits }

// Float32 returns the payload interpreted as a 32-bit float.
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }

// Float64 returns the payload interpreted as a 64-bit float.
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }

// Equal reports byte equality, which for canonical values is logical
// equality.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.bits == o.bits
}

func (v Value) String() string {
	switch v.kind {
	case KindI32:
		return fmt.Sprintf("i32:%d", uint32(v.bits))
	case KindI64:
		return fmt.Sprintf("i64:%d", v.bits)
	case KindF32:
		return fmt.Sprintf("f32:%g", v.Float32())
	case KindF64:
		return fmt.Sprintf("f64:%g", v.Float64())
	}
	return fmt.Sprintf("opaque:%#x", v.bits)
}

// KindOf maps a wazero value type to the corresponding Value kind.
// Reference types (externref, funcref) have no scalar payload and map to
// opaque.
func KindOf(vt api.ValueType) Kind {
	switch vt {
	case api.ValueTypeI32:
		return KindI32
	case api.ValueTypeI64:
		return KindI64
	case api.ValueTypeF32:
		return KindF32
	case api.ValueTypeF64:
		return KindF64
	}
	return KindOpaque
}

// FromStack canonicalizes one slot of a wazero call stack.
func FromStack(raw uint64, vt api.ValueType) Value {
	return Make(KindOf(vt), raw)
}

// CaptureStack canonicalizes the leading len(types) slots of a call stack.
// The stack is never aliased: the result is an independent deep copy.
func CaptureStack(stack []uint64, types []api.ValueType) []Value {
	if len(types) == 0 {
		return nil
	}
	vals := make([]Value, len(types))
	for i, vt := range types {
		vals[i] = FromStack(stack[i], vt)
	}
	return vals
}

// ToStack writes values back into the leading slots of a call stack.
func ToStack(vals []Value, stack []uint64) {
	for i, v := range vals {
		stack[i] = v.bits
	}
}
