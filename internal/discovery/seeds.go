// Package discovery warms the restaurant cache in bulk from a seed list of
// neighborhoods and queries.
package discovery

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Seeds lists what a discovery run searches: every query in every
// neighborhood.
type Seeds struct {
	Neighborhoods []string `yaml:"neighborhoods"`
	Queries       []string `yaml:"queries"`
	// MaxResults caps provider results per job. Zero uses the runner default.
	MaxResults int `yaml:"max_results"`
}

// Job is one provider search of a discovery run.
type Job struct {
	Query        string
	Neighborhood string
}

// LoadSeeds reads a YAML seed file.
func LoadSeeds(path string) (*Seeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read seeds %s", path)
	}
	return ParseSeeds(data)
}

// ParseSeeds decodes and validates a seed document. Blank and duplicate
// entries are dropped.
func ParseSeeds(data []byte) (*Seeds, error) {
	var s Seeds
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "discovery: parse seeds")
	}
	s.Neighborhoods = dedupe(s.Neighborhoods)
	s.Queries = dedupe(s.Queries)
	if len(s.Queries) == 0 {
		return nil, eris.New("discovery: seeds need at least one query")
	}
	if s.MaxResults < 0 {
		return nil, eris.Errorf("discovery: negative max_results %d", s.MaxResults)
	}
	return &s, nil
}

// Jobs expands the seeds into one job per neighborhood and query. Without
// neighborhoods each query runs once over the whole region.
func (s *Seeds) Jobs() []Job {
	neighborhoods := s.Neighborhoods
	if len(neighborhoods) == 0 {
		neighborhoods = []string{""}
	}
	jobs := make([]Job, 0, len(neighborhoods)*len(s.Queries))
	for _, n := range neighborhoods {
		for _, q := range s.Queries {
			jobs = append(jobs, Job{Query: q, Neighborhood: n})
		}
	}
	return jobs
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
