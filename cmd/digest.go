package main

import (
	"github.com/spf13/cobra"
)

var digestDryRun bool

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Compose and deliver the daily digest of top opportunities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		// A dry run only needs the store.
		command := "digest"
		if digestDryRun {
			command = "list"
		}
		env, err := initApp(ctx, command)
		if err != nil {
			return err
		}
		defer env.Close()

		result, runErr := env.Digest.Run(ctx, digestDryRun)
		if err := writeResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	digestCmd.Flags().BoolVar(&digestDryRun, "dry-run", false, "print the digest without sending it")
	rootCmd.AddCommand(digestCmd)
}
