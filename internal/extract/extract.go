// Package extract recovers restaurant entries from assistant free text. It is a
// pure parser: no I/O, and its records are display-only.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/dinescout/internal/geo"
	"github.com/sells-group/dinescout/internal/model"
)

// Placeholders fill fields a section does not provide.
const (
	PlaceholderName        = "[unnamed restaurant]"
	PlaceholderAddress     = "[address not provided]"
	PlaceholderCategory    = "[category not provided]"
	PlaceholderDescription = "[no description]"
)

// Marker starts an entry in the assistant's answer.
const Marker = "📍"

// DiscardReason says why a section produced no record.
type DiscardReason string

const (
	ReasonNoCoordinates DiscardReason = "no_coordinates"
	ReasonOutOfRegion   DiscardReason = "out_of_region"
)

// Discard describes a dropped section.
type Discard struct {
	Name   string
	Reason DiscardReason
}

// Result is the tagged outcome of an extraction.
type Result struct {
	Restaurants []model.Restaurant
	Discarded   []Discard
}

// Found reports whether any displayable restaurant was recovered.
func (r Result) Found() bool { return len(r.Restaurants) > 0 }

var (
	// headingRe matches "1. **Name**", "**1. Name**" and "### 1. Name" style entry headings.
	headingRe = regexp.MustCompile(`^\s*(?:#{1,4}\s*)?(?:\*\*\s*)?\d{1,2}[.)]\s+\S`)
	// coordRe matches a decimal "lat, lng" pair.
	coordRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)\s*[,;]\s*(-?\d{1,3}\.\d+)`)
	// fieldRe matches a labeled line such as "- **Dirección:** Calle Mayor 1".
	fieldRe = regexp.MustCompile(`^\s*[-*•]?\s*\**\s*([\p{L} ]+?)\s*\**\s*:\s*\**\s*(.*?)\s*$`)
	// boldRe strips markdown emphasis.
	boldRe = regexp.MustCompile(`\*{1,2}|_{2}`)
	// numberPrefixRe removes the "1." of a numbered heading.
	numberPrefixRe = regexp.MustCompile(`^\s*#*\s*\d{1,2}[.)]\s*`)
)

type field int

const (
	fieldNone field = iota
	fieldAddress
	fieldCategory
	fieldPrice
	fieldCoordinates
	fieldDescription
	fieldName
)

var labels = map[string]field{
	"dirección":   fieldAddress,
	"direccion":   fieldAddress,
	"address":     fieldAddress,
	"ubicación":   fieldAddress,
	"tipo":        fieldCategory,
	"categoría":   fieldCategory,
	"categoria":   fieldCategory,
	"cocina":      fieldCategory,
	"cuisine":     fieldCategory,
	"category":    fieldCategory,
	"type":        fieldCategory,
	"precio":      fieldPrice,
	"price":       fieldPrice,
	"coordenadas": fieldCoordinates,
	"coordinates": fieldCoordinates,
	"coords":      fieldCoordinates,
	"descripción": fieldDescription,
	"descripcion": fieldDescription,
	"description": fieldDescription,
	"nombre":      fieldName,
	"name":        fieldName,
}

// Extractor parses answers against a service region.
type Extractor struct {
	region *geo.Region
}

// New returns an Extractor that rejects coordinates outside region.
func New(region *geo.Region) *Extractor {
	return &Extractor{region: region}
}

// Extract splits text into entry sections and returns one record per section
// that carries an in-region coordinate pair.
func (e *Extractor) Extract(text string) Result {
	res := Result{Restaurants: []model.Restaurant{}}
	for _, sec := range split(text) {
		name, fields := parseSection(sec)

		loc, ok := e.sectionCoordinates(sec, fields[fieldCoordinates])
		if !ok {
			res.Discarded = append(res.Discarded, Discard{Name: name, Reason: ReasonNoCoordinates})
			continue
		}
		if !e.region.Contains(loc) {
			res.Discarded = append(res.Discarded, Discard{Name: name, Reason: ReasonOutOfRegion})
			continue
		}

		r := model.Restaurant{
			PlaceID:          fmt.Sprintf("extracted-%d", len(res.Restaurants)+1),
			Name:             orPlaceholder(name, PlaceholderName),
			FormattedAddress: orPlaceholder(fields[fieldAddress], PlaceholderAddress),
			Description:      orPlaceholder(fields[fieldDescription], PlaceholderDescription),
			PriceLevel:       parsePrice(fields[fieldPrice]),
			Location:         &loc,
			Types:            []string{},
			Photos:           []string{},
			Extracted:        true,
		}
		category := orPlaceholder(fields[fieldCategory], PlaceholderCategory)
		r.Cuisine = &category
		res.Restaurants = append(res.Restaurants, r)
	}
	return res
}

// split returns the entry sections of text. A section starts at a marker line or
// a numbered heading; text before the first entry is ignored.
func split(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	useMarker := strings.Contains(text, Marker)

	var sections []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			sections = append(sections, strings.Join(cur, "\n"))
		}
		cur = nil
	}
	for _, ln := range lines {
		var start bool
		if useMarker {
			start = isMarkerHeading(ln)
		} else {
			start = headingRe.MatchString(ln)
		}
		if start {
			flush()
			cur = []string{ln}
			continue
		}
		if cur != nil {
			cur = append(cur, ln)
		}
	}
	flush()
	return sections
}

// isMarkerHeading reports whether ln opens an entry with the marker. A marker in
// front of a labeled field ("📍 Dirección: ...") does not.
func isMarkerHeading(ln string) bool {
	rest, ok := strings.CutPrefix(strings.TrimLeft(ln, " \t-*#>"), Marker)
	if !ok {
		return false
	}
	if m := fieldRe.FindStringSubmatch(rest); m != nil {
		if _, labeled := labels[strings.ToLower(strings.TrimSpace(m[1]))]; labeled {
			return false
		}
	}
	return true
}

// parseSection returns the entry name from the heading and the labeled fields.
func parseSection(sec string) (string, map[field]string) {
	lines := strings.Split(sec, "\n")
	fields := make(map[field]string)

	name := headingName(lines[0])
	for _, ln := range lines[1:] {
		m := fieldRe.FindStringSubmatch(strings.ReplaceAll(ln, Marker, ""))
		if m == nil {
			continue
		}
		f, ok := labels[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok {
			continue
		}
		val := strings.TrimSpace(boldRe.ReplaceAllString(m[2], ""))
		if val == "" {
			continue
		}
		if _, dup := fields[f]; !dup {
			fields[f] = val
		}
	}
	if name == "" {
		name = fields[fieldName]
	}
	return name, fields
}

func headingName(line string) string {
	s := strings.ReplaceAll(line, Marker, "")
	s = boldRe.ReplaceAllString(s, "")
	s = numberPrefixRe.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "#-: \t")
	// Drop trailing "- description" or ": description" after the name.
	for _, sep := range []string{" - ", " – ", " — ", ": "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// sectionCoordinates returns the first in-region pair, preferring the labeled
// coordinates field over the rest of the section. When no pair is in region it
// returns the first valid one so the caller can report it as out of region.
func (e *Extractor) sectionCoordinates(sec, labeled string) (model.LatLng, bool) {
	var first model.LatLng
	found := false
	for _, s := range []string{labeled, sec} {
		for _, loc := range parseCoordinates(s) {
			if e.region.Contains(loc) {
				return loc, true
			}
			if !found {
				first, found = loc, true
			}
		}
	}
	return first, found
}

// parseCoordinates returns every valid "lat, lng" pair in s, in order.
func parseCoordinates(s string) []model.LatLng {
	var out []model.LatLng
	for _, m := range coordRe.FindAllStringSubmatch(s, -1) {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lng, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if loc := (model.LatLng{Lat: lat, Lng: lng}); loc.Valid() {
			out = append(out, loc)
		}
	}
	return out
}

// parsePrice maps "€€", "$$", "moderado" or a provider enum onto a price level.
func parsePrice(s string) model.PriceLevel {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.PriceLevelUnspecified
	}
	if lvl, ok := model.ParsePriceLevel(s); ok {
		return lvl
	}
	first := strings.Trim(strings.Fields(s)[0], ".,;()")
	if first != "" && strings.Trim(first, "€") == "" {
		first = strings.Repeat("$", min(utf8.RuneCountInString(first), 4))
	}
	if lvl, ok := model.ParsePriceLevel(first); ok {
		return lvl
	}
	return model.PriceLevelUnspecified
}

func orPlaceholder(v, placeholder string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}
