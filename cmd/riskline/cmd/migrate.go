package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/riskline/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Apply pending schema migrations to the configured database and exit.
Every other command migrates on start as well; this is for deploy hooks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store storage.Storage) error {
			if err := store.Ping(ctx); err != nil {
				return err
			}
			fmt.Println("Database schema is up to date.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
