// Package engine runs WebAssembly guests with every host call recorded
// or replayed.
//
// This package wraps wazero: it compiles guests, fingerprints them,
// registers host imports behind the boundary interceptor, and invokes an
// entry export for one run.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine   - Creates and manages a wazero runtime
//	Guest    - A compiled guest binary plus its SHA-256 checksum
//	HostFunc - One host import declaration with its real implementation
//
// # Recording Flow
//
//  1. Engine.LoadGuest() compiles and fingerprints the guest binary
//  2. Engine.Signature() builds the trace signature (format version,
//     guest checksum, record settings, config snapshot)
//  3. Engine.Record() wraps every HostFunc, runs the entry export, and
//     streams one Entry and one Return per host call into the sink
//
// # Replay Flow
//
//  1. Engine.LoadGuest() compiles the guest to replay against
//  2. Engine.Replay() arms a replay session, which refuses the trace if
//     its format version or guest checksum do not match
//  3. The guest runs with host implementations suppressed: results and
//     memory effects come from the trace, guest computation runs live
//
// Replay returns nil only when the session completes: the guest issued
// exactly the recorded calls, in order, with the recorded arguments, and
// consumed the whole trace.
//
// # Configuration
//
// Config captures the engine options that affect guest-visible
// semantics. Config.Snapshot() serializes them into the trace signature
// so a replay run can be reconstructed under the exact recording
// environment; ParseSnapshot() refuses blobs it cannot parse.
package engine
