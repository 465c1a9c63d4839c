package errors_test

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-rewind/errors"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.Error
		want []string
	}{
		{
			name: "divergence with field",
			err:  errors.Divergence("env.double", "arg", 0, uint64(5), uint64(6)),
			want: []string{"[replay]", "divergence", "env.double", "arg[0]", "expected 5", "observed 6"},
		},
		{
			name: "configuration",
			err:  errors.Unsupported(errors.PhaseTrack, "soft-dirty requires linux"),
			want: []string{"[track]", "unsupported", "soft-dirty requires linux"},
		},
		{
			name: "out of bounds",
			err:  errors.OutOfBounds(errors.PhaseCapture, 65530, 16, 65536),
			want: []string{"[capture]", "out_of_bounds", "[65530, 65546)", "65536"},
		},
		{
			name: "exhausted",
			err:  errors.Exhausted("env.rand"),
			want: []string{"[replay]", "exhausted", "env.rand"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(msg, want) {
					t.Errorf("error %q missing %q", msg, want)
				}
			}
		})
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	err := errors.Divergence("env.f", "arg", 1, uint64(1), uint64(2))

	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseReplay, Kind: errors.KindDivergence}) {
		t.Error("expected Is to match phase+kind")
	}
	if stderrors.Is(err, &errors.Error{Phase: errors.PhaseReplay, Kind: errors.KindExhausted}) {
		t.Error("expected Is to reject different kind")
	}
}

func TestIsKindUnwrapsCause(t *testing.T) {
	inner := errors.Truncated("missing end marker")
	outer := errors.New(errors.PhaseReplay, errors.KindConfiguration).
		Detail("trace unusable").
		Cause(inner).
		Build()

	if !errors.IsKind(outer, errors.KindTruncated) {
		t.Error("expected IsKind to find truncated in cause chain")
	}
	if !errors.IsKind(outer, errors.KindConfiguration) {
		t.Error("expected IsKind to match outer kind")
	}
	if errors.IsKind(outer, errors.KindDivergence) {
		t.Error("unexpected divergence match")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := errors.IO("write trace", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected Is to reach wrapped cause")
	}
	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestBuilder(t *testing.T) {
	err := errors.New(errors.PhaseReplay, errors.KindDivergence).
		Callee("wasi:io/streams#read").
		Field("result", 2).
		Expected(uint64(42)).
		Observed(uint64(0)).
		Detail("result count %d", 3).
		Build()

	if err.Callee != "wasi:io/streams#read" {
		t.Errorf("Callee = %q", err.Callee)
	}
	if err.Field != "result" || err.Index != 2 {
		t.Errorf("Field = %q[%d]", err.Field, err.Index)
	}
	if err.Detail != "result count 3" {
		t.Errorf("Detail = %q", err.Detail)
	}
}
