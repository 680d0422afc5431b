package chat

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/search"
)

// Intent is what the classifier reads out of a user message.
type Intent struct {
	// Restaurant is true when the message asks for places to eat.
	Restaurant   bool
	Query        string
	Neighborhood string
	Filters      search.Filters
}

// venueWords mark a request for a place to eat.
var venueWords = []string{
	"restaurante", "restaurantes", "restaurant", "restaurants",
	"comer", "cenar", "almorzar", "comida", "cena", "almuerzo",
	"desayunar", "desayuno", "brunch", "tapas", "tapear", "taberna",
	"asador", "marisqueria", "cerveceria", "bistro", "eat", "dinner", "lunch",
}

// cuisineWords become the search query when present.
var cuisineWords = []string{
	"cocido", "paella", "tortilla", "bocadillo de calamares", "callos", "churros",
	"italiano", "italiana", "pizza", "pasta", "japones", "japonesa", "sushi", "ramen",
	"chino", "china", "mexicano", "mexicana", "tacos", "peruano", "peruana", "ceviche",
	"indio", "india", "thai", "tailandes", "coreano", "vegano", "vegana", "vegetariano",
	"vegetariana", "hamburguesa", "hamburguesas", "burger", "marisco", "mariscos",
	"carne", "steak", "gallego", "vasco", "asturiano", "andaluz", "mediterraneo",
}

var priceHints = []struct {
	words  []string
	levels []model.PriceLevel
}{
	{[]string{"barato", "barata", "baratos", "economico", "economica", "cheap", "low cost"},
		[]model.PriceLevel{model.PriceLevelFree, model.PriceLevelInexpensive}},
	{[]string{"precio medio", "moderado", "asequible"},
		[]model.PriceLevel{model.PriceLevelModerate}},
	{[]string{"caro", "lujo", "elegante", "alta cocina", "fine dining", "estrella michelin"},
		[]model.PriceLevel{model.PriceLevelExpensive, model.PriceLevelVeryExpensive}},
}

var openNowHints = []string{"abierto ahora", "abiertos ahora", "ahora mismo", "open now", "esta abierto"}

// Classifier turns a message into an Intent. It is a pure function of the
// message text and its configured neighborhoods.
type Classifier struct {
	neighborhoods []string
	folded        []string
}

// NewClassifier returns a classifier that recognizes the given neighborhoods.
func NewClassifier(neighborhoods []string) *Classifier {
	c := &Classifier{}
	for _, n := range neighborhoods {
		if f := words(n); f != "" {
			c.neighborhoods = append(c.neighborhoods, n)
			c.folded = append(c.folded, f)
		}
	}
	return c
}

// Classify reads the intent of msg. Matching is accent- and case-insensitive
// and works on whole words, so "sí" or "bar" inside "barrio" never trigger a
// search.
func (c *Classifier) Classify(msg string) Intent {
	text := " " + words(msg) + " "

	var in Intent
	cuisine := firstMatch(text, cuisineWords)
	in.Restaurant = cuisine != "" || firstMatch(text, venueWords) != ""
	if !in.Restaurant {
		return in
	}

	in.Query = cuisine
	if in.Query == "" {
		in.Query = "restaurante"
	}
	for i, f := range c.folded {
		if containsWord(text, f) {
			in.Neighborhood = c.neighborhoods[i]
			break
		}
	}
	for _, h := range priceHints {
		if firstMatch(text, h.words) != "" {
			in.Filters.PriceLevels = h.levels
			break
		}
	}
	if firstMatch(text, openNowHints) != "" {
		open := true
		in.Filters.OpenNow = &open
	}
	return in
}

func firstMatch(text string, list []string) string {
	for _, w := range list {
		if containsWord(text, w) {
			return w
		}
	}
	return ""
}

// containsWord expects text built by words and padded with spaces.
func containsWord(text, phrase string) bool {
	return strings.Contains(text, " "+phrase+" ")
}

// words folds s and collapses it to single-space separated words.
func words(s string) string {
	return strings.Join(strings.FieldsFunc(fold(s), notWordRune), " ")
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// fold lowercases s and strips diacritics ("Chamberí" → "chamberi").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
