package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dinescout",
	Short: "Restaurant search backed by a TTL cache and a live places provider",
	Long:  "Answers restaurant queries from a cached entity store, falls back to the live places provider, and streams grounded chat answers over SSE.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
