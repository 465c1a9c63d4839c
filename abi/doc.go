// Package abi classifies calling-convention values against WIT function
// signatures.
//
// The call-boundary interceptor sees only flat core values. To know which
// of them name guest buffers (and therefore which memory regions to
// snapshot), it consults a Shape derived from the callee's WIT signature:
// strings and lists flatten to pointer+length pairs, scalars to single
// slots, and oversized result tuples to a caller-provided return-area
// pointer. The package also provides the lift-then-lower round trip the
// canonicalizer falls back to when a value's payload width is ambiguous
// without a full type-directed lift.
package abi
