// Package errors provides structured error types for the wasm-rewind library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context for divergence diagnostics:
// the callee identity, the argument or result position that differed, and the
// expected versus observed values.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseReplay, errors.KindDivergence).
//		Callee("env.double").
//		Field("arg", 0).
//		Expected(uint64(5)).
//		Observed(uint64(6)).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Divergence("env.double", "arg", 0, exp, got)
//	err := errors.Unsupported(errors.PhaseTrack, "userfaultfd not available")
//
// All errors implement the standard error interface and support errors.Is/As.
// No error produced here is retried internally: a divergence or capture
// failure always surfaces to the caller.
package errors
