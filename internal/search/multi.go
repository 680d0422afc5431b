package search

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dinescout/internal/model"
)

// MultiResult merges per-neighborhood searches.
type MultiResult struct {
	Records []model.Restaurant `json:"restaurants"`
	// Sources maps each neighborhood to the tier that answered it.
	Sources map[string]Source `json:"sources"`
}

// SearchMany runs one Search per neighborhood concurrently and merges the
// results in neighborhood order, keeping the first record seen per place ID.
func (o *Orchestrator) SearchMany(ctx context.Context, req Request, neighborhoods []string) (*MultiResult, error) {
	if len(neighborhoods) == 0 {
		res, err := o.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		return &MultiResult{Records: res.Records, Sources: map[string]Source{"": res.Source}}, nil
	}

	results := make([]*Result, len(neighborhoods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanOut)
	for i, n := range neighborhoods {
		g.Go(func() error {
			r := req
			r.Neighborhood = n
			res, err := o.Search(gctx, r)
			if err != nil {
				return eris.Wrapf(err, "search: neighborhood %q", n)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &MultiResult{Records: []model.Restaurant{}, Sources: make(map[string]Source, len(neighborhoods))}
	seen := make(map[string]bool)
	for i, res := range results {
		out.Sources[neighborhoods[i]] = res.Source
		for _, rec := range res.Records {
			if seen[rec.PlaceID] {
				continue
			}
			seen[rec.PlaceID] = true
			out.Records = append(out.Records, rec)
		}
	}
	return out, nil
}
