package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one discovery pass (search, extract, persist, score)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result, runErr := env.Pipeline.Run(ctx)
		if err := writeResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		return runErr
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the opportunities and pipeline_runs tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return writeResult(cmd.OutOrStdout(), map[string]any{
			"success": true,
			"message": "schema ready",
		})
	},
}

// writeResult prints v as indented JSON.
func writeResult(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
}
