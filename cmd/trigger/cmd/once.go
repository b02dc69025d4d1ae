package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/quiet-hours/internal/trigger"
)

var verbose bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single dispatch tick and print the result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, cleanup, err := newTrigger(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		resp, err := t.Fire(cmd.Context())
		if err != nil {
			return err
		}

		out := map[string]interface{}{
			"message":   resp.Message,
			"processed": resp.Processed,
			"summary":   trigger.Summarize(resp),
		}
		if verbose {
			out["results"] = resp.Results
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	onceCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every outcome")
}
