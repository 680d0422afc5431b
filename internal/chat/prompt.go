package chat

import (
	"fmt"
	"strings"

	"github.com/sells-group/dinescout/internal/extract"
	"github.com/sells-group/dinescout/internal/model"
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

// Prompt is everything a Generator needs for one answer.
type Prompt struct {
	ExchangeID string
	Messages   []Message

	// Instructions is identical for every exchange.
	Instructions string
	// Context grounds the answer in the restaurants sent as metadata. It is
	// empty when no metadata was sent.
	Context string
}

// System joins the instructions and the grounding context.
func (p Prompt) System() string {
	if p.Context == "" {
		return p.Instructions
	}
	return p.Instructions + "\n\n" + p.Context
}

var instructions = fmt.Sprintf(`Eres un asistente gastronómico de %%s. Recomienda restaurantes reales y responde en el idioma del usuario.

Cuando recomiendes restaurantes, empieza cada uno en una línea nueva con "%[1]s **Nombre**" y añade debajo estas líneas:
- **Dirección:** calle y número
- **Tipo:** tipo de cocina
- **Precio:** de € a €€€€
- **Coordenadas:** latitud, longitud en grados decimales
- **Descripción:** una frase

No inventes coordenadas; si no las conoces, omite esa línea.`, extract.Marker)

// buildPrompt assembles the prompt for history. records are the restaurants
// already sent to the client as metadata.
func buildPrompt(region, exchangeID string, history []Message, records []model.Restaurant) Prompt {
	p := Prompt{
		ExchangeID:   exchangeID,
		Messages:     history,
		Instructions: fmt.Sprintf(instructions, region),
	}
	if len(records) > 0 {
		p.Context = groundingContext(records)
	}
	return p
}

func groundingContext(records []model.Restaurant) string {
	var b strings.Builder
	b.WriteString("El usuario ya ve en pantalla estos restaurantes. Básate en ellos y no propongas otros:\n")
	for i, r := range records {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Name)
		if c := r.CuisineOrEmpty(); c != "" {
			fmt.Fprintf(&b, " (%s)", c)
		}
		if r.FormattedAddress != "" {
			fmt.Fprintf(&b, ", %s", r.FormattedAddress)
		}
		if r.Rating != nil {
			fmt.Fprintf(&b, ", valoración %.1f (%d reseñas)", *r.Rating, r.UserRatingsTotal)
		}
		if r.PriceLevel != model.PriceLevelUnspecified && r.PriceLevel != "" {
			fmt.Fprintf(&b, ", %s", priceLabel(r.PriceLevel))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func priceLabel(p model.PriceLevel) string {
	switch p {
	case model.PriceLevelFree:
		return "gratis"
	case model.PriceLevelInexpensive:
		return "€"
	case model.PriceLevelModerate:
		return "€€"
	case model.PriceLevelExpensive:
		return "€€€"
	case model.PriceLevelVeryExpensive:
		return "€€€€"
	default:
		return ""
	}
}
