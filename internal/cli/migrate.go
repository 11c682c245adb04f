package cli

import (
	"fmt"

	"crm_engine_backend/platform/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, pool, err := openPool(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer pool.Close()

		log.Info("migrations applied")
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied state of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, pool, err := openPool(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer pool.Close()

		return db.MigrationStatus(cmd.Context(), pool)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
