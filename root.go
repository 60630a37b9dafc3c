package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dictakey",
		Short: "Push-to-talk dictation",
		Long: `dictakey records while the push-to-talk key is held (or after the toggle
shortcut), transcribes the recording and pastes the text into the focused field.

Without a subcommand it starts the desktop recorder.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDesktop()
		},
	}

	debug := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debug {
			_ = os.Setenv("DICTAKEY_LOG_LEVEL", "debug")
		}
	}

	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newRetryCommand())
	cmd.AddCommand(newKeysCommand())
	cmd.AddCommand(newCleanupCommand())

	return cmd
}
