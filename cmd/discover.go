package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dinescout/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Warm the restaurant cache from a seed list of neighborhoods and queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		seedsPath, _ := cmd.Flags().GetString("seeds")
		if seedsPath == "" {
			seedsPath = cfg.Discovery.SeedsPath
		}
		seeds, err := discovery.LoadSeeds(seedsPath)
		if err != nil {
			return err
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printPlan(os.Stdout, seeds)
			return nil
		}

		env, err := initSearch(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := discovery.NewRunner(env.Live.WithTTL(cfg.Cache.DiscoveryTTL()), discovery.Config{
			RateLimit:   cfg.Discovery.RateLimit,
			Concurrency: cfg.Discovery.Concurrency,
			MaxResults:  cfg.Discovery.MaxResults,
		})

		result, err := runner.Run(ctx, seeds)
		if result != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(result)
		}
		if err != nil {
			return eris.Wrap(err, "discover")
		}
		return nil
	},
}

func printPlan(w io.Writer, seeds *discovery.Seeds) {
	jobs := seeds.Jobs()
	fmt.Fprintf(w, "%d jobs (%d neighborhoods x %d queries)\n", len(jobs), len(seeds.Neighborhoods), len(seeds.Queries))
	for _, j := range jobs {
		n := j.Neighborhood
		if n == "" {
			n = "(region)"
		}
		fmt.Fprintf(w, "  %s / %s\n", n, j.Query)
	}
}

func init() {
	discoverCmd.Flags().String("seeds", "", "seed YAML file (default from config)")
	discoverCmd.Flags().Bool("dry-run", false, "print the jobs without calling the provider")
	rootCmd.AddCommand(discoverCmd)
}
