package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusflow/nexusflow/db"
	"github.com/nexusflow/nexusflow/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies all pending schema migrations to the configured
PostgreSQL database. The serve command runs migrations automatically on
startup; this command exists for deployments that migrate separately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
