package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/recovery-match/internal/models"
)

var (
	matchesOpportunity string
	matchesSurvivor    string
	evaluateSurvivor   string
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List matches of an opportunity or a survivor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (matchesOpportunity == "") == (matchesSurvivor == "") {
			return errors.New("exactly one of --opportunity or --survivor is required")
		}
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		var matches []models.OpportunityMatch
		if matchesOpportunity != "" {
			id, err := uuid.Parse(matchesOpportunity)
			if err != nil {
				return fmt.Errorf("invalid opportunity id: %w", err)
			}
			matches, err = e.store.ListMatchesByOpportunity(ctx, id)
			if err != nil {
				return err
			}
		} else {
			id, err := uuid.Parse(matchesSurvivor)
			if err != nil {
				return fmt.Errorf("invalid survivor id: %w", err)
			}
			matches, err = e.store.ListMatchesBySurvivor(ctx, id)
			if err != nil {
				return err
			}
		}

		renderMatches(matches)
		return nil
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a survivor against every open opportunity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := uuid.Parse(evaluateSurvivor)
		if err != nil {
			return fmt.Errorf("invalid survivor id: %w", err)
		}
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		matches, err := e.matches().MatchSurvivor(ctx, id)
		renderMatches(matches)
		return err
	},
}

func renderMatches(matches []models.OpportunityMatch) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Opportunity", "Survivor", "Score", "Status", "Award", "Failed", "Updated At"})

	for _, m := range matches {
		award := "-"
		if m.AwardAmount != nil {
			award = strconv.FormatFloat(*m.AwardAmount, 'f', 2, 64)
		}
		failed := 0
		for _, d := range m.Details {
			if d.Evaluated && !d.Matched {
				failed++
			}
		}
		t.AppendRow(table.Row{
			m.OpportunityID.String()[:8], m.SurvivorID.String()[:8], m.Score, m.Status,
			award, failed, m.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.AppendFooter(table.Row{"", "Total", len(matches)})
	t.Render()
}

func init() {
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(evaluateCmd)

	matchesCmd.Flags().StringVar(&matchesOpportunity, "opportunity", "", "opportunity id")
	matchesCmd.Flags().StringVar(&matchesSurvivor, "survivor", "", "survivor id")

	evaluateCmd.Flags().StringVar(&evaluateSurvivor, "survivor", "", "survivor id")
	_ = evaluateCmd.MarkFlagRequired("survivor")
}
