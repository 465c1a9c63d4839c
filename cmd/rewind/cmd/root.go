package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-rewind/engine"
)

var rootCmd = &cobra.Command{
	Use:           "rewind",
	Short:         "record and replay host calls of a wasm guest",
	Long:          "rewind records every host call a wasm guest makes, along with the memory it dirties, into a trace file. A later run replays the trace: host logic never executes, the guest sees identical inputs, and any behavioral difference surfaces as a divergence error.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			return nil
		}
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		engine.SetLogger(logger)
		return nil
	},
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the CLI and returns the command error for exit-code
// mapping in main.
func Execute() error {
	return rootCmd.Execute()
}
