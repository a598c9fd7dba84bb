package cmd

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg, logger, true)
		if err != nil {
			logger.Error("Migration failed", "error", err)
			return err
		}
		defer s.Close()
		logger.Info("Migrations applied")
		return nil
	},
}
