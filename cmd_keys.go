package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dictakey/internal/domain"
)

func newKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the keys push-to-talk can be bound to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range domain.AllPushToTalkKeys() {
				marker := " "
				if key == domain.DefaultPushToTalkKey {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-13s %s\n", marker, key, key.Label())
			}
			return nil
		},
	}
}
