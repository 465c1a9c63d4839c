// Package boundary intercepts host-call boundary crossings of a running
// guest.
//
// Every registered host import is wrapped in an api.GoModuleFunc that, in
// record mode, captures canonicalized arguments, input buffer snapshots,
// the real call's results, and the dirty-page memory diff, appending one
// Entry and one Return per crossing. In replay mode the wrapper never
// invokes real host logic: it verifies the observed call against the
// recorded Entry, re-issues recorded allocator libcalls so guest
// allocator state advances identically, writes the recorded results back
// onto the stack, and applies the recorded output regions to memory.
//
// All per-call state lives in an explicit per-instance Context; two guest
// instances never share a tracker, a cursor, or a baseline. Failures
// inside a wrapper propagate by panicking with the package error type,
// which the execution engine surfaces as the call's error.
package boundary
