package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/llm-mediator/internal/auth"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "hash-code <access-code>...",
		Short: "Print SHA-256 digests of access codes (without the nk- prefix) for auth.access_code_hashes",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, code := range args {
				fmt.Fprintln(cmd.OutOrStdout(), auth.HashAccessCode(code))
			}
		},
	})
}
