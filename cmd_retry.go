package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dictakey/internal/bootstrap"
	"dictakey/internal/usecase"
)

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry the last failed transcription with the current model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := bootstrap.Build(cmd.Context(), bootstrap.Headless(nil))
			if err != nil {
				return err
			}
			defer services.Close()

			record, err := services.Controller.RetryLast(cmd.Context())
			if errors.Is(err, usecase.ErrNothingToRetry) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to retry.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), record.DeliveredText())
			return nil
		},
	}
}
