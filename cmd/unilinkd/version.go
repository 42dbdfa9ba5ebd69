package main

import (
	"fmt"

	"github.com/opd-ai/unilink/noise"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the unilinkd version and supported patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "unilinkd version %s\n", version)
		for _, id := range noise.Patterns() {
			p, err := noise.Lookup(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pattern %d: %s\n", id, p.Name())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
