// Package cli implements the studioflow command line: the HTTP server plus
// the operational commands (migrations, recurring-rule runs, seeding).
package cli

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studioflow/internal/db"
	"studioflow/internal/logger"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studioflow",
		Short:         "Studio management for a small architecture practice",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return logger.Setup(logger.FromEnv())
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newRecurringCmd())
	root.AddCommand(newSeedCmd())
	return root
}

// openPool connects to the database for a one-shot command.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	return db.NewPool(ctx)
}
