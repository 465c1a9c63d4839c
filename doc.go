// Package wasmrewind records and replays the host-call boundary of a
// WebAssembly guest.
//
// During a recording run every host import the guest calls is
// intercepted: its canonicalized arguments and results, the guest
// buffers it reads, and the memory pages it dirties are captured into an
// ordered trace. A replay run feeds the same guest the recorded data in
// recorded order without executing host logic at all — the guest's own
// computation runs live, and any departure from the recording surfaces
// as a divergence error naming the exact call and value that differed.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	wasmrewind/          Root package documentation
//	├── engine/          wazero integration: guest loading, record/replay runs
//	├── boundary/        Host-call interception for both modes
//	├── replay/          Trace cursor and the replay state machine
//	├── trace/           Event model, in-memory log, compressed file format
//	├── snapshot/        Memory capture and dirty diffs around each call
//	├── pagetrack/       Page-granular write tracking (shadow, soft-dirty, uffd)
//	├── abi/             Canonical-ABI value classification and widths
//	├── rawval/          Canonicalized raw core values
//	├── errors/          Structured error taxonomy for all phases
//	└── cmd/rewind/      record / replay / inspect CLI
//
// # Quick Start
//
// Record a guest run, then replay it:
//
//	eng, _ := engine.New(ctx, engine.Config{})
//	defer eng.Close(ctx)
//
//	guest, _ := eng.LoadGuest(ctx, wasmBytes)
//	sig, _ := eng.Signature(guest, trace.RecordSettings{})
//	w, _ := trace.Create("trace.bin", sig)
//	_, err := eng.Record(ctx, guest, hosts, w, engine.RecordOptions{Entry: "run"})
//	w.Close()
//
//	log, _ := trace.ReadFile("trace.bin")
//	_, err = eng.Replay(ctx, guest, hosts, log, engine.ReplayOptions{Entry: "run"})
//
// Replay returns nil only when the guest issued exactly the recorded
// calls and consumed the whole trace.
package wasmrewind
