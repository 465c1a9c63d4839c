package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/rawval"
	"github.com/wippyai/wasm-rewind/trace"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] trace.bin",
	Short: "print or browse the events of a trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

var inspectInteractive bool

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVarP(&inspectInteractive, "interactive", "i", false, "browse the trace in a TUI")
}

func runInspect(path string) error {
	log, err := trace.ReadFile(path)
	if err != nil {
		return err
	}

	if inspectInteractive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.Configuration(errors.PhaseConfig, "interactive mode needs a terminal")
		}
		return runInteractive(path, log)
	}

	printSignature(log)
	for i, ev := range log.Events() {
		fmt.Printf("%4d  %s\n", i, eventLine(ev))
	}
	return nil
}

func printSignature(log *trace.Log) {
	sig := log.Signature()
	fmt.Printf("format version: %d\n", sig.Version)
	fmt.Printf("guest checksum: %s\n", hex.EncodeToString(sig.GuestChecksum[:]))
	fmt.Printf("validation:     %v\n", sig.Settings.AddValidation)
	fmt.Printf("config:         %s\n", sig.Config)
	state := "complete"
	if !log.Complete() {
		state = "truncated"
	}
	fmt.Printf("events:         %d (%s)\n\n", log.Len(), state)
}

func eventLine(ev trace.Event) string {
	switch e := ev.(type) {
	case *trace.Entry:
		return fmt.Sprintf("call    %s(%s)%s", e.Callee, joinValues(e.Args), regionNote(e.Inputs, "in"))
	case *trace.Return:
		return fmt.Sprintf("return  %s -> %s%s", e.Callee, joinValues(e.Results), regionNote(e.Outputs, "out"))
	case *trace.LibcallEntry:
		return fmt.Sprintf("libcall %s(%s)", e.Name, joinValues(e.Args))
	case *trace.LibcallReturn:
		return fmt.Sprintf("libret  %s -> %s", e.Name, joinValues(e.Results))
	case *trace.Diagnostic:
		return fmt.Sprintf("note    %s", e.Message)
	}
	return ev.Kind().String()
}

// eventDetail renders the full event for the TUI detail pane, including
// hex dumps of captured regions.
func eventDetail(ev trace.Event) string {
	var b strings.Builder
	b.WriteString(eventLine(ev))
	b.WriteString("\n")

	writeRegions := func(label string, regions []trace.MemoryRegion) {
		for _, r := range regions {
			fmt.Fprintf(&b, "\n%s %s (%d bytes)\n", label, r, len(r.Bytes))
			b.WriteString(hexDump(r.Bytes))
		}
	}
	switch e := ev.(type) {
	case *trace.Entry:
		writeRegions("input", e.Inputs)
	case *trace.Return:
		fmt.Fprintf(&b, "\nmemory size %d bytes\n", e.MemSize)
		writeRegions("output", e.Outputs)
	case *trace.LibcallEntry:
		writeRegions("input", e.Inputs)
	case *trace.LibcallReturn:
		writeRegions("output", e.Outputs)
	}
	return b.String()
}

// hexDump renders up to 256 bytes, 16 per row.
func hexDump(data []byte) string {
	const limit = 256
	truncated := false
	if len(data) > limit {
		data = data[:limit]
		truncated = true
	}
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "  %04x  % x\n", off, data[off:end])
	}
	if truncated {
		b.WriteString("  ...\n")
	}
	return b.String()
}

func joinValues(vals []rawval.Value) string {
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = v.String()
	}
	return strings.Join(strs, ", ")
}

func regionNote(regions []trace.MemoryRegion, dir string) string {
	if len(regions) == 0 {
		return ""
	}
	total := 0
	for _, r := range regions {
		total += len(r.Bytes)
	}
	return fmt.Sprintf("  [%d %s regions, %d bytes]", len(regions), dir, total)
}
