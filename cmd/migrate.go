package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and sync configured providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		if err := syncProviders(ctx, st, cfg.Providers); err != nil {
			return err
		}

		zap.L().Info("migrations applied",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("providers", len(cfg.Providers)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
