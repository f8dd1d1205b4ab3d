package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tabletop-agent/internal/models"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := openDatabase(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			logger.Info("Database migrated", zap.String("db_path", cfg.DBPath))
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s\n", cfg.DBPath)
			return nil
		},
	}
}

// newSetRoleCmd assigns a room's role offline. A running server reads the
// role on the room's next event and leases the engine built for that role.
func newSetRoleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setrole <room> <role>",
		Short: "Assign a room to the gm or assistant handler",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := args[0]
			role := models.ChannelRole(strings.ToLower(strings.TrimSpace(args[1])))
			if role != models.ChannelRoleGM && role != models.ChannelRoleAssistant {
				return fmt.Errorf("unknown role %q: expected %s or %s", args[1], models.ChannelRoleGM, models.ChannelRoleAssistant)
			}

			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := openDatabase(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.SetRoomRole(cmd.Context(), roomID, role); err != nil {
				return fmt.Errorf("failed to set role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role set to %s\n", role)
			return nil
		},
	}
}
