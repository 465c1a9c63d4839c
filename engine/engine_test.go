package engine_test

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-rewind/abi"
	"github.com/wippyai/wasm-rewind/boundary"
	"github.com/wippyai/wasm-rewind/engine"
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/internal/wasmbuild"
	"github.com/wippyai/wasm-rewind/trace"
)

// doubleGuest imports env.double and exports run(x) = env.double(x).
func doubleGuest() []byte {
	m := &wasmbuild.Module{
		Imports: []wasmbuild.Import{{
			Module: "env", Name: "double",
			Type: wasmbuild.FuncType{Params: []byte{wasmbuild.I32}, Results: []byte{wasmbuild.I32}},
		}},
		MemoryPages: 1,
		Funcs: []wasmbuild.Func{{
			Export: "run",
			Type:   wasmbuild.FuncType{Params: []byte{wasmbuild.I32}, Results: []byte{wasmbuild.I32}},
			Body:   wasmbuild.Instrs(wasmbuild.LocalGet(0), wasmbuild.Call(0)),
		}},
	}
	return m.Encode()
}

// fillGuest imports env.fill(ptr), calls it, then returns the byte the
// host left at that address. Replay must reproduce the byte from the
// recorded memory diff without running the host.
func fillGuest() []byte {
	const ptr = 64
	m := &wasmbuild.Module{
		Imports: []wasmbuild.Import{{
			Module: "env", Name: "fill",
			Type: wasmbuild.FuncType{Params: []byte{wasmbuild.I32}},
		}},
		MemoryPages: 1,
		Funcs: []wasmbuild.Func{{
			Export: "run",
			Type:   wasmbuild.FuncType{Results: []byte{wasmbuild.I32}},
			Body: wasmbuild.Instrs(
				wasmbuild.I32Const(ptr),
				wasmbuild.Call(0),
				wasmbuild.I32Const(ptr),
				wasmbuild.I32Load8U(0),
			),
		}},
	}
	return m.Encode()
}

func doubleHost() []engine.HostFunc {
	return []engine.HostFunc{{
		Module: "env", Name: "double",
		Params:  []api.ValueType{api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
		Fn: func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(uint32(stack[0]) * 2)
		},
	}}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx, engine.Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func record(t *testing.T, e *engine.Engine, guest *engine.Guest, hosts []engine.HostFunc, opts engine.RecordOptions) (*trace.Log, []uint64) {
	t.Helper()
	sig, err := e.Signature(guest, trace.RecordSettings{AddValidation: opts.AddValidation})
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	log := trace.NewLog(sig)
	results, err := e.Record(context.Background(), guest, hosts, log, opts)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := log.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return log, results
}

func TestRecordReplayRoundTrip(t *testing.T) {
	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), doubleGuest())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	opts := engine.RecordOptions{Entry: "run", EntryArgs: []uint64{21}}
	log, recorded := record(t, e, guest, doubleHost(), opts)
	if len(recorded) != 1 || uint32(recorded[0]) != 42 {
		t.Fatalf("recorded results = %v, want [42]", recorded)
	}
	if log.Len() != 2 {
		t.Fatalf("trace has %d events, want entry+return", log.Len())
	}

	// Replay with host logic absent: results must come from the trace.
	hosts := doubleHost()
	hosts[0].Fn = nil
	replayed, err := e.Replay(context.Background(), guest, hosts, log,
		engine.ReplayOptions{Entry: "run", EntryArgs: []uint64{21}})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != recorded[0] {
		t.Fatalf("replayed results = %v, recorded %v", replayed, recorded)
	}
}

func TestReplayDivergesOnDifferentInput(t *testing.T) {
	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), doubleGuest())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	log, _ := record(t, e, guest, doubleHost(), engine.RecordOptions{Entry: "run", EntryArgs: []uint64{21}})

	_, err = e.Replay(context.Background(), guest, doubleHost(), log,
		engine.ReplayOptions{Entry: "run", EntryArgs: []uint64{22}})
	if !errors.IsKind(err, errors.KindDivergence) {
		t.Fatalf("err = %v, want divergence", err)
	}
}

func TestReplayExhaustsShortTrace(t *testing.T) {
	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), doubleGuest())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	sig, err := e.Signature(guest, trace.RecordSettings{})
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	empty := trace.NewLog(sig)
	if err := empty.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	_, err = e.Replay(context.Background(), guest, doubleHost(), empty,
		engine.ReplayOptions{Entry: "run", EntryArgs: []uint64{21}})
	if !errors.IsKind(err, errors.KindExhausted) {
		t.Fatalf("err = %v, want exhausted", err)
	}
}

func TestReplayRefusesDifferentGuest(t *testing.T) {
	e := newEngine(t)
	recordedGuest, err := e.LoadGuest(context.Background(), doubleGuest())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}
	otherGuest, err := e.LoadGuest(context.Background(), fillGuest())
	if err != nil {
		t.Fatalf("load other guest: %v", err)
	}

	log, _ := record(t, e, recordedGuest, doubleHost(), engine.RecordOptions{Entry: "run", EntryArgs: []uint64{1}})

	_, err = e.Replay(context.Background(), otherGuest, nil, log, engine.ReplayOptions{Entry: "run"})
	if !errors.IsKind(err, errors.KindGuestMismatch) {
		t.Fatalf("err = %v, want guest mismatch", err)
	}
}

func TestReplayAppliesMemoryOutputs(t *testing.T) {
	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), fillGuest())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	hosts := []engine.HostFunc{{
		Module: "env", Name: "fill",
		Params: []api.ValueType{api.ValueTypeI32},
		Fn: func(_ context.Context, mod api.Module, stack []uint64) {
			mod.Memory().Write(uint32(stack[0]), []byte{0x5A})
		},
	}}

	log, recorded := record(t, e, guest, hosts, engine.RecordOptions{Entry: "run"})
	if len(recorded) != 1 || byte(recorded[0]) != 0x5A {
		t.Fatalf("recorded results = %v, want [0x5A]", recorded)
	}

	hosts[0].Fn = nil
	replayed, err := e.Replay(context.Background(), guest, hosts, log, engine.ReplayOptions{Entry: "run"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed[0] != recorded[0] {
		t.Fatalf("replayed byte = %#x, recorded %#x", replayed[0], recorded[0])
	}
}

func TestRecordReplayAcrossMemoryGrowth(t *testing.T) {
	// The host grows guest memory and then writes inside the original
	// first page. Growth moves wazero's backing buffer, so the recording
	// must not lose the write, and replay must re-grow before applying
	// the outputs.
	const ptr = 64
	m := &wasmbuild.Module{
		Imports: []wasmbuild.Import{{
			Module: "env", Name: "fill_grown",
			Type: wasmbuild.FuncType{},
		}},
		MemoryPages: 1,
		Funcs: []wasmbuild.Func{{
			Export: "run",
			Type:   wasmbuild.FuncType{Results: []byte{wasmbuild.I32}},
			Body: wasmbuild.Instrs(
				wasmbuild.Call(0),
				wasmbuild.I32Const(ptr),
				wasmbuild.I32Load8U(0),
			),
		}},
	}

	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), m.Encode())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	hosts := []engine.HostFunc{{
		Module: "env", Name: "fill_grown",
		Fn: func(_ context.Context, mod api.Module, _ []uint64) {
			if _, ok := mod.Memory().Grow(1); !ok {
				t.Error("grow failed")
			}
			mod.Memory().Write(ptr, []byte{0x5A})
		},
	}}

	log, recorded := record(t, e, guest, hosts, engine.RecordOptions{Entry: "run"})
	if len(recorded) != 1 || byte(recorded[0]) != 0x5A {
		t.Fatalf("recorded results = %v, want [0x5A]", recorded)
	}
	ret := log.Events()[1].(*trace.Return)
	if ret.MemSize != 2*65536 {
		t.Fatalf("recorded MemSize = %d, want two pages", ret.MemSize)
	}

	hosts[0].Fn = nil
	replayed, err := e.Replay(context.Background(), guest, hosts, log, engine.ReplayOptions{Entry: "run"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if byte(replayed[0]) != 0x5A {
		t.Fatalf("replayed byte = %#x, want 0x5A", replayed[0])
	}
}

func TestRecordReplayWithLibcall(t *testing.T) {
	// The host allocates guest memory through the guest's own allocator,
	// writes its result there, and returns the pointer. Recording must
	// capture the allocation as a nested libcall pair; replay re-issues
	// it against the real allocator.
	i32x4 := []byte{wasmbuild.I32, wasmbuild.I32, wasmbuild.I32, wasmbuild.I32}
	m := &wasmbuild.Module{
		Imports: []wasmbuild.Import{{
			Module: "env", Name: "greet",
			Type: wasmbuild.FuncType{Results: []byte{wasmbuild.I32}},
		}},
		MemoryPages: 1,
		Funcs: []wasmbuild.Func{
			{
				// Degenerate bump allocator: always hands out 256.
				Export: abi.CabiRealloc,
				Type:   wasmbuild.FuncType{Params: i32x4, Results: []byte{wasmbuild.I32}},
				Body:   wasmbuild.Instrs(wasmbuild.I32Const(256)),
			},
			{
				Export: "run",
				Type:   wasmbuild.FuncType{Results: []byte{wasmbuild.I32}},
				Body: wasmbuild.Instrs(
					wasmbuild.Call(0),
					wasmbuild.I32Load8U(0),
				),
			},
		},
	}

	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), m.Encode())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	hosts := []engine.HostFunc{{
		Module: "env", Name: "greet",
		Results: []api.ValueType{api.ValueTypeI32},
		Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, err := boundary.Realloc(ctx, mod, 0, 0, 1, 1)
			if err != nil {
				t.Errorf("realloc: %v", err)
				return
			}
			mod.Memory().Write(ptr, []byte{0x7F})
			stack[0] = uint64(ptr)
		},
	}}

	log, recorded := record(t, e, guest, hosts, engine.RecordOptions{Entry: "run"})
	if len(recorded) != 1 || byte(recorded[0]) != 0x7F {
		t.Fatalf("recorded results = %v, want [0x7F]", recorded)
	}
	if log.Len() != 4 {
		t.Fatalf("trace has %d events, want entry+libcall pair+return", log.Len())
	}
	lc := log.Events()[1].(*trace.LibcallEntry)
	if lc.Name != abi.CabiRealloc {
		t.Fatalf("libcall = %q, want %q", lc.Name, abi.CabiRealloc)
	}

	hosts[0].Fn = nil
	replayed, err := e.Replay(context.Background(), guest, hosts, log, engine.ReplayOptions{Entry: "run"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if byte(replayed[0]) != 0x7F {
		t.Fatalf("replayed byte = %#x, want 0x7F", replayed[0])
	}
}

func TestReplayRunsGuestComputationLive(t *testing.T) {
	// The guest's own arithmetic runs for real during replay; only host
	// calls are substituted. run(x) = env.double(x) + x.
	m := &wasmbuild.Module{
		Imports: []wasmbuild.Import{{
			Module: "env", Name: "double",
			Type: wasmbuild.FuncType{Params: []byte{wasmbuild.I32}, Results: []byte{wasmbuild.I32}},
		}},
		MemoryPages: 1,
		Funcs: []wasmbuild.Func{{
			Export: "run",
			Type:   wasmbuild.FuncType{Params: []byte{wasmbuild.I32}, Results: []byte{wasmbuild.I32}},
			Body: wasmbuild.Instrs(
				wasmbuild.LocalGet(0),
				wasmbuild.Call(0),
				wasmbuild.LocalGet(0),
				wasmbuild.I32Add(),
			),
		}},
	}

	e := newEngine(t)
	guest, err := e.LoadGuest(context.Background(), m.Encode())
	if err != nil {
		t.Fatalf("load guest: %v", err)
	}

	log, recorded := record(t, e, guest, doubleHost(), engine.RecordOptions{Entry: "run", EntryArgs: []uint64{10}})
	if uint32(recorded[0]) != 30 {
		t.Fatalf("recorded = %d, want 30", recorded[0])
	}

	hosts := doubleHost()
	hosts[0].Fn = nil
	replayed, err := e.Replay(context.Background(), guest, hosts, log,
		engine.ReplayOptions{Entry: "run", EntryArgs: []uint64{10}})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if uint32(replayed[0]) != 30 {
		t.Fatalf("replayed = %d, want 30", replayed[0])
	}
}
