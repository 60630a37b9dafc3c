package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dictakey/internal/bootstrap"
	"dictakey/internal/domain"
)

func newHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transcriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := bootstrap.Build(cmd.Context(), bootstrap.Headless(nil))
			if err != nil {
				return err
			}
			defer services.Close()

			records, err := services.Store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of records to show")
	return cmd
}

func printHistory(out io.Writer, records []domain.TranscriptionRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No transcriptions yet.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tMODEL\tSECONDS\tTEXT")
	for _, r := range records {
		status := "ok"
		switch {
		case r.Failed:
			status = "failed"
		case r.RetryOf != "":
			status = "retried"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			status,
			r.ModelName,
			r.DurationSeconds,
			truncate(r.DeliveredText(), 60),
		)
	}
	return w.Flush()
}

func truncate(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
