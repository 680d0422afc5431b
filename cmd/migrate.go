package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the restaurant store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		count, err := st.Count(ctx)
		if err != nil {
			return eris.Wrap(err, "count restaurants")
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver), zap.Int64("restaurants", count))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
