package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/catalog"
	"github.com/david/recovery-match/internal/models"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the opportunity catalog into the database",
	Long: "Load the embedded opportunity catalog, or a YAML file given with --file. " +
		"Existing opportunities are updated in place and their matches rescored.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		var opps []models.FundingOpportunity
		if seedFile != "" {
			opps, err = catalog.LoadSeedFile(seedFile)
		} else {
			opps, err = catalog.LoadSeed()
		}
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}

		svc := e.matches()
		var inserted, updated int
		for i := range opps {
			created, err := e.store.UpsertOpportunity(ctx, &opps[i])
			if err != nil {
				return err
			}
			if created {
				inserted++
				continue
			}
			updated++
			stats, err := svc.RescoreOpportunity(ctx, opps[i].ID)
			if err != nil {
				return fmt.Errorf("rescoring %q: %w", opps[i].Title, err)
			}
			e.logger.Debug("rescored seeded opportunity",
				zap.String("title", opps[i].Title),
				zap.Int("updated", stats.Updated),
			)
		}

		e.logger.Info("catalog seeded", zap.Int("inserted", inserted), zap.Int("updated", updated))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML catalog to load instead of the embedded one")
}
