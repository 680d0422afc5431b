package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one restaurant search through cache, live provider and stale fallback",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, neighborhoods, err := searchRequestFromFlags(cmd, strings.Join(args, " "))
		if err != nil {
			return err
		}

		env, err := initSearch(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Search.SearchMany(ctx, req, neighborhoods)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		if len(res.Records) == 0 {
			fmt.Fprintln(os.Stderr, "No restaurants found.")
			return nil
		}
		formatRestaurants(os.Stdout, res)
		return nil
	},
}

func searchRequestFromFlags(cmd *cobra.Command, query string) (search.Request, []string, error) {
	neighborhoods, _ := cmd.Flags().GetStringSlice("neighborhood")
	prices, _ := cmd.Flags().GetStringSlice("price")
	area, _ := cmd.Flags().GetString("area")
	maxResults, _ := cmd.Flags().GetInt("max-results")

	req := search.Request{
		Query:      strings.TrimSpace(query),
		MaxResults: maxResults,
		Filters:    search.Filters{Neighborhood: area},
	}
	for _, raw := range prices {
		lvl, ok := model.ParsePriceLevel(raw)
		if !ok {
			return req, nil, eris.Errorf("unknown price level %q", raw)
		}
		req.Filters.PriceLevels = append(req.Filters.PriceLevels, lvl)
	}
	if cmd.Flags().Changed("min-rating") {
		v, _ := cmd.Flags().GetFloat64("min-rating")
		if v < 0 || v > 5 {
			return req, nil, eris.Errorf("min-rating %.1f out of range 0-5", v)
		}
		req.Filters.MinRating = &v
	}
	if cmd.Flags().Changed("open-now") {
		v, _ := cmd.Flags().GetBool("open-now")
		req.Filters.OpenNow = &v
	}
	return req, neighborhoods, nil
}

func formatRestaurants(w io.Writer, res *search.MultiResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCUISINE\tRATING\tPRICE\tADDRESS")
	for _, r := range res.Records {
		rating := "-"
		if r.Rating != nil {
			rating = fmt.Sprintf("%.1f (%d)", *r.Rating, r.UserRatingsTotal)
		}
		cuisine := "-"
		if r.Cuisine != nil {
			cuisine = *r.Cuisine
		}
		price := strings.TrimPrefix(string(r.PriceLevel), "PRICE_LEVEL_")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, cuisine, rating, strings.ToLower(price), r.FormattedAddress)
	}
	_ = tw.Flush()

	for _, n := range slices.Sorted(maps.Keys(res.Sources)) {
		src := res.Sources[n]
		if n == "" {
			n = "(region)"
		}
		fmt.Fprintf(w, "source %s: %s\n", n, src)
	}
}

func init() {
	searchCmd.Flags().StringSlice("neighborhood", nil, "neighborhood to search (repeatable)")
	searchCmd.Flags().StringSlice("price", nil, "price levels ($, moderate, PRICE_LEVEL_EXPENSIVE...)")
	searchCmd.Flags().Float64("min-rating", 0, "minimum rating 0-5")
	searchCmd.Flags().Bool("open-now", false, "only restaurants open now")
	searchCmd.Flags().String("area", "", "address or neighborhood substring filter")
	searchCmd.Flags().Int("max-results", 0, "provider result cap (default from config)")
	searchCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(searchCmd)
}
