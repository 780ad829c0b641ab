package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/recovery-match/internal/models"
)

var statusOpportunity string

// statusOrder is the display order of match statuses.
var statusOrder = []models.Status{
	models.StatusPending, models.StatusNotified, models.StatusApplied, models.StatusAwarded,
	models.StatusFunded, models.StatusRejected, models.StatusArchived,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many matches are in each status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var oppID *uuid.UUID
		if statusOpportunity != "" {
			id, err := uuid.Parse(statusOpportunity)
			if err != nil {
				return fmt.Errorf("invalid opportunity id: %w", err)
			}
			oppID = &id
		}

		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		counts, err := e.store.MatchStatusCounts(ctx, oppID)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Status", "Matches"})
		total := 0
		for _, s := range statusOrder {
			t.AppendRow(table.Row{s, counts[s]})
			total += counts[s]
			delete(counts, s)
		}
		// Anything left is a value the state machine does not know.
		for s, n := range counts {
			t.AppendRow(table.Row{string(s) + " (unknown)", n})
			total += n
		}
		t.AppendFooter(table.Row{"Total", total})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusOpportunity, "opportunity", "", "limit counts to one opportunity")
}
