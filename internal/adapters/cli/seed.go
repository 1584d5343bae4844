package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"studioflow/internal/core"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the initial admin user and default cash accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()
			return seed(ctx, pool)
		},
	}
}

// seed is idempotent: existing rows are left alone.
func seed(ctx context.Context, pool *pgxpool.Pool) error {
	users := core.NewUserService(pool)
	if _, err := users.GetByUsername(ctx, "admin"); err != nil {
		if _, err := users.CreateUser(ctx, core.UserInput{
			Username: "admin",
			FullName: "Administrator",
			Role:     core.RoleAdmin,
		}); err != nil {
			return fmt.Errorf("seed admin user: %w", err)
		}
		log.Info().Msg("created admin user")
	}

	accounts := core.NewAccountService(pool)
	existing, err := accounts.GetAccounts(ctx, false)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(existing) == 0 {
		defaults := []core.AccountInput{
			{Name: "Primary Current Account", AccountType: "bank", OpeningBalance: decimal.Zero},
			{Name: "Petty Cash", AccountType: "cash", OpeningBalance: decimal.Zero},
		}
		for _, input := range defaults {
			if _, err := accounts.CreateAccount(ctx, input); err != nil {
				return fmt.Errorf("seed account %q: %w", input.Name, err)
			}
			log.Info().Str("account", input.Name).Msg("created account")
		}
	}
	return nil
}
