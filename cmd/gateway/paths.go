package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/llm-mediator/internal/openai"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "paths",
		Short: "List the upstream subpaths callers may request",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range openai.Paths() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", mountPrefix, p)
			}
		},
	})
}
