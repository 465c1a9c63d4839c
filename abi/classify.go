package abi

import (
	"go.bytecodealliance.org/wit"
)

// MaxFlatResults is the number of core results a lifted function may
// return directly; beyond it the canonical ABI switches to a return-area
// pointer parameter.
const MaxFlatResults = 1

// Canonical ABI allocator export names, including pre-standardization
// spellings still found in the wild.
const (
	CabiRealloc   = "cabi_realloc"
	legacyRealloc = "canonical_abi_realloc"
	simpleAlloc   = "alloc"
	legacyAlloc   = "allocate"
)

// IsLibcall reports whether name is a canonical-ABI helper rather than a
// guest-facing import.
func IsLibcall(name string) bool {
	switch name {
	case CabiRealloc, legacyRealloc, simpleAlloc, legacyAlloc:
		return true
	}
	return false
}

// AllocatorExports returns the guest allocator export names to probe, in
// preference order.
func AllocatorExports() []string {
	return []string{CabiRealloc, legacyRealloc, simpleAlloc, legacyAlloc}
}

// Class describes the role of one flat core value slot.
type Class uint8

const (
	// ClassScalar is a plain value with no memory indirection.
	ClassScalar Class = iota
	// ClassBufferPtr is a guest memory offset naming a buffer.
	ClassBufferPtr
	// ClassBufferLen is the element count paired with a ClassBufferPtr.
	ClassBufferLen
	// ClassRetPtr is the caller-provided return-area pointer.
	ClassRetPtr
)

// Buffer identifies a pointer+length pair among a function's flat
// parameters. ElemSize converts the length slot's element count to bytes.
type Buffer struct {
	Ptr      int
	Len      int
	ElemSize uint32
}

// Shape is the boundary-level classification of one callee: one Class per
// flat core parameter and result, the input buffers among the parameters,
// and the return area if the results do not fit in core results.
type Shape struct {
	Name    string
	Params  []Class
	Results []Class
	Buffers []Buffer
	// RetPtr is the flat parameter index of the return-area pointer, or
	// -1 when results flatten directly.
	RetPtr  int
	RetSize uint32
}

// ShapeOf derives the Shape for a callee with the given WIT parameter and
// result types.
func ShapeOf(name string, params, results []wit.Type) Shape {
	s := Shape{Name: name, RetPtr: -1}
	for _, p := range params {
		flattenInto(p, &s)
	}

	if n := flatCount(results); n > MaxFlatResults {
		// Oversized results travel through a caller-allocated return
		// area; the pointer is appended after the lowered parameters.
		s.RetPtr = len(s.Params)
		s.Params = append(s.Params, ClassRetPtr)
		for _, r := range results {
			s.RetSize += byteSize(r)
		}
	} else {
		for i := 0; i < n; i++ {
			s.Results = append(s.Results, ClassScalar)
		}
	}
	return s
}

// ScalarShape builds a Shape for a callee whose flat parameters and
// results are all plain scalars, for callers with no WIT-level signature.
func ScalarShape(name string, numParams, numResults int) Shape {
	s := Shape{Name: name, RetPtr: -1}
	for i := 0; i < numParams; i++ {
		s.Params = append(s.Params, ClassScalar)
	}
	for i := 0; i < numResults; i++ {
		s.Results = append(s.Results, ClassScalar)
	}
	return s
}

// flattenInto appends the flat classification of one parameter type.
func flattenInto(t wit.Type, s *Shape) {
	switch t := t.(type) {
	case wit.String:
		appendBuffer(s, 1)
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			appendBuffer(s, byteSize(kind.Type))
		case *wit.Record:
			for _, f := range kind.Fields {
				flattenInto(f.Type, s)
			}
		case *wit.Tuple:
			for _, elem := range kind.Types {
				flattenInto(elem, s)
			}
		case *wit.Option:
			s.Params = append(s.Params, ClassScalar) // discriminant
			flattenInto(kind.Type, s)
		case *wit.Result, *wit.Variant:
			// Discriminant plus a payload union. Whether a payload slot
			// is a pointer depends on the case taken at call time, which
			// the flat view cannot see; classify conservatively as
			// scalars and rely on the diff engine for any memory the
			// call touches through them.
			for i := 0; i < flatCount([]wit.Type{t}); i++ {
				s.Params = append(s.Params, ClassScalar)
			}
		case wit.Type:
			flattenInto(kind, s)
		default:
			s.Params = append(s.Params, ClassScalar)
		}
	default:
		s.Params = append(s.Params, ClassScalar)
	}
}

func appendBuffer(s *Shape, elemSize uint32) {
	ptr := len(s.Params)
	s.Params = append(s.Params, ClassBufferPtr, ClassBufferLen)
	s.Buffers = append(s.Buffers, Buffer{Ptr: ptr, Len: ptr + 1, ElemSize: elemSize})
}

// flatCount returns the number of core value slots the types flatten to.
func flatCount(types []wit.Type) int {
	count := 0
	for _, t := range types {
		count += flatCountOne(t)
	}
	return count
}

func flatCountOne(t wit.Type) int {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32,
		wit.U64, wit.S64, wit.F32, wit.F64, wit.Char:
		return 1
	case wit.String:
		return 2
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			return 2
		case *wit.Record:
			count := 0
			for _, f := range kind.Fields {
				count += flatCountOne(f.Type)
			}
			return count
		case *wit.Tuple:
			count := 0
			for _, elem := range kind.Types {
				count += flatCountOne(elem)
			}
			return count
		case *wit.Option:
			return 1 + flatCountOne(kind.Type)
		case *wit.Enum, *wit.Flags:
			return 1
		case *wit.Result:
			payload := 0
			if kind.OK != nil {
				payload = flatCountOne(kind.OK)
			}
			if kind.Err != nil {
				if n := flatCountOne(kind.Err); n > payload {
					payload = n
				}
			}
			return 1 + payload
		case *wit.Variant:
			payload := 0
			for _, c := range kind.Cases {
				if c.Type != nil {
					if n := flatCountOne(c.Type); n > payload {
						payload = n
					}
				}
			}
			return 1 + payload
		case wit.Type:
			return flatCountOne(kind)
		}
	}
	return 1
}

// byteSize returns the canonical in-memory size of a type, used for
// return areas and list element strides.
func byteSize(t wit.Type) uint32 {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8:
		return 1
	case wit.U16, wit.S16:
		return 2
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return 4
	case wit.U64, wit.S64, wit.F64:
		return 8
	case wit.String:
		return 8 // ptr + len
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.List:
			return 8
		case *wit.Record:
			var size uint32
			for _, f := range kind.Fields {
				size = align(size, byteSize(f.Type)) + byteSize(f.Type)
			}
			return size
		case *wit.Tuple:
			var size uint32
			for _, elem := range kind.Types {
				size = align(size, byteSize(elem)) + byteSize(elem)
			}
			return size
		case wit.Type:
			return byteSize(kind)
		}
	}
	return 8
}

func align(off, a uint32) uint32 {
	if a == 0 || a > 8 {
		a = 8
	}
	return (off + a - 1) &^ (a - 1)
}

// Registry maps callee identifiers to their shapes. Registration happens
// once, before guest execution starts.
type Registry struct {
	shapes map[string]Shape
}

// NewRegistry creates an empty shape registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[string]Shape)}
}

// Register stores the shape under its callee name.
func (r *Registry) Register(s Shape) {
	r.shapes[s.Name] = s
}

// Lookup returns the shape registered for name.
func (r *Registry) Lookup(name string) (Shape, bool) {
	s, ok := r.shapes[name]
	return s, ok
}
