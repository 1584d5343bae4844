package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"studioflow/internal/core"
)

func newRecurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Recurring transaction rules",
	}

	var asOf string
	run := &cobra.Command{
		Use:   "run",
		Short: "Generate cashbook entries for all due recurring rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer pool.Close()

			today := time.Now()
			if asOf != "" {
				today, err = time.Parse("2006-01-02", asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of date %q, want YYYY-MM-DD", asOf)
				}
			}

			svc := core.NewRecurringService(pool, core.NewCashbook(pool))
			created, err := svc.GenerateTransactions(ctx, today, nil)
			if err != nil {
				return err
			}
			log.Info().Int("created", created).Msg("recurring run complete")
			return nil
		},
	}
	run.Flags().StringVar(&asOf, "as-of", "", "treat this date as today (YYYY-MM-DD)")

	cmd.AddCommand(run)
	return cmd
}
