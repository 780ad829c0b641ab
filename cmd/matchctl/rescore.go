package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/matching"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var (
	rescoreOpportunity string
	rescoreYes         bool
)

var errAborted = errors.New("aborted")

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Rescore stored matches against current criteria and profiles",
	Long: "Rescore the matches of one opportunity, or of every open opportunity. " +
		"Scores and details change; statuses and history are left alone.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var oppID *uuid.UUID
		if rescoreOpportunity != "" {
			id, err := uuid.Parse(rescoreOpportunity)
			if err != nil {
				return fmt.Errorf("invalid opportunity id: %w", err)
			}
			oppID = &id
		}

		if !rescoreYes {
			label := "Rescore matches of every open opportunity?"
			if oppID != nil {
				label = fmt.Sprintf("Rescore matches of opportunity %s?", oppID)
			}
			prompt := promptui.Select{Label: label, Items: []string{PromptYes, PromptNo}}
			_, answer, err := prompt.Run()
			if err != nil {
				return err
			}
			if answer != PromptYes {
				return errAborted
			}
		}

		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		svc := e.matches()
		var stats matching.RescoreStats
		if oppID != nil {
			stats, err = svc.RescoreOpportunity(ctx, *oppID)
		} else {
			stats, err = svc.RescoreAll(ctx)
		}

		e.logger.Info("rescore finished",
			zap.Int("opportunities", stats.Opportunities),
			zap.Int("scanned", stats.Scanned),
			zap.Int("updated", stats.Updated),
			zap.Int("conflicts", stats.Conflicts),
			zap.Int("missing_profile", stats.MissingProfile),
		)
		return err
	},
}

func init() {
	rootCmd.AddCommand(rescoreCmd)
	rescoreCmd.Flags().StringVar(&rescoreOpportunity, "opportunity", "", "rescore only this opportunity")
	rescoreCmd.Flags().BoolVarP(&rescoreYes, "yes", "y", false, "do not ask for confirmation")
}
