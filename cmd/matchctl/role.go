package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/auth"
	"github.com/david/recovery-match/internal/models"
)

var roleCmd = &cobra.Command{
	Use:   "role <email> <role>",
	Short: "Change the role of a user (super_admin, admin, case_manager, user)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := models.ParseRole(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		authService, err := auth.NewService(e.pool, e.cfg.JWTSecret, e.logger)
		if err != nil {
			return err
		}
		if err := authService.SetRole(ctx, args[0], role); err != nil {
			return err
		}
		e.logger.Info("role updated", zap.String("email", args[0]), zap.String("role", string(role)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roleCmd)
}
