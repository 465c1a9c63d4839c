package trace

import (
	"io"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/rawval"
	"github.com/wippyai/wasm-rewind/trace/internal/binary"
)

// Event wire layout: a kind byte followed by a kind-specific payload.
// Raw values travel as a kind tag plus fixed 8 canonical payload bytes;
// memory regions as offset, length, raw bytes.

// maxWireItems bounds per-event collection counts before anything is
// allocated for them. Real events stay orders of magnitude below it; a
// larger count can only come from corruption.
const maxWireItems = 1 << 20

func encodeValues(w *binary.Writer, vals []rawval.Value) {
	w.WriteU32(uint32(len(vals)))
	for _, v := range vals {
		w.Byte(byte(v.Kind()))
		w.WriteU64LE(v.Bits())
	}
}

func decodeValues(r *binary.Reader) ([]rawval.Value, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n > maxWireItems {
		return nil, errors.InvalidData(errors.PhaseTrace, "value count %d exceeds wire limit", n)
	}
	vals := make([]rawval.Value, 0, min(n, 64))
	for i := uint32(0); i < n; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		bits, err := r.ReadU64LE()
		if err != nil {
			return nil, err
		}
		vals = append(vals, rawval.Make(rawval.Kind(kind), bits))
	}
	return vals, nil
}

func encodeRegions(w *binary.Writer, regions []MemoryRegion) {
	w.WriteU32(uint32(len(regions)))
	for _, reg := range regions {
		w.WriteU32(reg.Offset)
		w.WriteBytes(reg.Bytes)
	}
}

func decodeRegions(r *binary.Reader) ([]MemoryRegion, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n > maxWireItems {
		return nil, errors.InvalidData(errors.PhaseTrace, "region count %d exceeds wire limit", n)
	}
	regions := make([]MemoryRegion, 0, min(n, 64))
	for i := uint32(0); i < n; i++ {
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		b, err := r.ReadPrefixedBytes()
		if err != nil {
			return nil, err
		}
		regions = append(regions, MemoryRegion{Offset: off, Bytes: b})
	}
	return regions, nil
}

func encodeEvent(w *binary.Writer, e Event) error {
	w.Byte(byte(e.Kind()))
	switch ev := e.(type) {
	case *Signature:
		w.WriteU32(ev.Version)
		w.Raw(ev.GuestChecksum[:])
		var flags byte
		if ev.Settings.AddValidation {
			flags |= 1
		}
		w.Byte(flags)
		w.WriteBytes(ev.Config)
	case *Entry:
		w.WriteName(ev.Callee)
		encodeValues(w, ev.Args)
		encodeRegions(w, ev.Inputs)
	case *Return:
		w.WriteName(ev.Callee)
		encodeValues(w, ev.Results)
		encodeRegions(w, ev.Outputs)
		w.WriteU32(ev.MemSize)
	case *LibcallEntry:
		w.WriteName(ev.Name)
		encodeValues(w, ev.Args)
		encodeRegions(w, ev.Inputs)
	case *LibcallReturn:
		w.WriteName(ev.Name)
		encodeValues(w, ev.Results)
		encodeRegions(w, ev.Outputs)
	case *Diagnostic:
		w.WriteName(ev.Message)
	case End:
	default:
		return errors.InvalidData(errors.PhaseTrace, "cannot encode event kind %v", e.Kind())
	}
	return nil
}

func decodeEvent(r *binary.Reader) (Event, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch EventKind(kind) {
	case KindSignature:
		sig := &Signature{}
		if sig.Version, err = r.ReadU32(); err != nil {
			return nil, err
		}
		sum, err := r.ReadBytes(32)
		if err != nil {
			return nil, err
		}
		copy(sig.GuestChecksum[:], sum)
		flags, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		sig.Settings.AddValidation = flags&1 != 0
		if sig.Config, err = r.ReadPrefixedBytes(); err != nil {
			return nil, err
		}
		return sig, nil

	case KindEntry:
		ev := &Entry{}
		if ev.Callee, err = r.ReadName(); err != nil {
			return nil, err
		}
		if ev.Args, err = decodeValues(r); err != nil {
			return nil, err
		}
		if ev.Inputs, err = decodeRegions(r); err != nil {
			return nil, err
		}
		return ev, nil

	case KindReturn:
		ev := &Return{}
		if ev.Callee, err = r.ReadName(); err != nil {
			return nil, err
		}
		if ev.Results, err = decodeValues(r); err != nil {
			return nil, err
		}
		if ev.Outputs, err = decodeRegions(r); err != nil {
			return nil, err
		}
		if ev.MemSize, err = r.ReadU32(); err != nil {
			return nil, err
		}
		return ev, nil

	case KindLibcallEntry:
		ev := &LibcallEntry{}
		if ev.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if ev.Args, err = decodeValues(r); err != nil {
			return nil, err
		}
		if ev.Inputs, err = decodeRegions(r); err != nil {
			return nil, err
		}
		return ev, nil

	case KindLibcallReturn:
		ev := &LibcallReturn{}
		if ev.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if ev.Results, err = decodeValues(r); err != nil {
			return nil, err
		}
		if ev.Outputs, err = decodeRegions(r); err != nil {
			return nil, err
		}
		return ev, nil

	case KindDiagnostic:
		msg, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return &Diagnostic{Message: msg}, nil

	case KindEnd:
		return End{}, nil
	}
	return nil, errors.InvalidData(errors.PhaseTrace, "unknown event kind %d", kind)
}

// writeEvent frames one event into out.
func writeEvent(out io.Writer, e Event) error {
	w := binary.NewWriter()
	if err := encodeEvent(w, e); err != nil {
		return err
	}
	if _, err := w.WriteTo(out); err != nil {
		return errors.IO("write event", err)
	}
	return nil
}
