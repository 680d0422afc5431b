package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// fieldMask lists every field the restaurant record is built from.
var fieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.location",
	"places.rating",
	"places.userRatingCount",
	"places.priceLevel",
	"places.priceRange",
	"places.types",
	"places.primaryType",
	"places.photos.name",
	"places.regularOpeningHours.openNow",
	"places.regularOpeningHours.weekdayDescriptions",
	"places.nationalPhoneNumber",
	"places.websiteUri",
	"places.addressComponents",
	"nextPageToken",
}, ",")

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the body of a places:searchText call.
type TextSearchRequest struct {
	TextQuery           string               `json:"textQuery"`
	MaxResultCount      int                  `json:"maxResultCount,omitempty"`
	LanguageCode        string               `json:"languageCode,omitempty"`
	IncludedType        string               `json:"includedType,omitempty"`
	LocationRestriction *LocationRestriction `json:"locationRestriction,omitempty"`
	PageToken           string               `json:"pageToken,omitempty"`
}

// LocationRestriction limits results to a rectangle.
type LocationRestriction struct {
	Rectangle Rectangle `json:"rectangle"`
}

// Rectangle is a viewport given by its low (south-west) and high (north-east) corners.
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place represents a place returned by the API. Optional fields are pointers
// so an absent value can be told apart from a zero one.
type Place struct {
	ID                  string             `json:"id"`
	DisplayName         DisplayName        `json:"displayName"`
	FormattedAddress    string             `json:"formattedAddress"`
	Location            *LatLng            `json:"location,omitempty"`
	Rating              *float64           `json:"rating,omitempty"`
	UserRatingCount     int                `json:"userRatingCount"`
	PriceLevel          string             `json:"priceLevel,omitempty"`
	PriceRange          *PriceRange        `json:"priceRange,omitempty"`
	Types               []string           `json:"types"`
	PrimaryType         string             `json:"primaryType,omitempty"`
	Photos              []Photo            `json:"photos,omitempty"`
	RegularOpeningHours *OpeningHours      `json:"regularOpeningHours,omitempty"`
	NationalPhoneNumber string             `json:"nationalPhoneNumber,omitempty"`
	WebsiteURI          string             `json:"websiteUri,omitempty"`
	AddressComponents   []AddressComponent `json:"addressComponents,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// LatLng is a coordinate as the API encodes it.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PriceRange is the typical spend per person.
type PriceRange struct {
	StartPrice *Money `json:"startPrice,omitempty"`
	EndPrice   *Money `json:"endPrice,omitempty"`
}

// Money is google.type.Money. Units arrive as a decimal string.
type Money struct {
	CurrencyCode string `json:"currencyCode"`
	Units        string `json:"units"`
	Nanos        int64  `json:"nanos,omitempty"`
}

// Amount returns units + nanos as a float. Unparseable units yield false.
func (m Money) Amount() (float64, bool) {
	var units float64
	if _, err := fmt.Sscanf(m.Units, "%g", &units); err != nil {
		return 0, false
	}
	return units + float64(m.Nanos)/1e9, true
}

// Photo is a photo resource reference.
type Photo struct {
	Name string `json:"name"`
}

// OpeningHours is the regular schedule of a place.
type OpeningHours struct {
	OpenNow             *bool    `json:"openNow,omitempty"`
	WeekdayDescriptions []string `json:"weekdayDescriptions,omitempty"`
}

// AddressComponent is one structured piece of the address.
type AddressComponent struct {
	LongText  string   `json:"longText"`
	ShortText string   `json:"shortText"`
	Types     []string `json:"types"`
}

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	// Status is the google.rpc status name from the error body, e.g. RESOURCE_EXHAUSTED.
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("google: unexpected status %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Message)
}

// QuotaExceeded reports whether the error signals an exhausted quota or rate limit.
func (e *APIError) QuotaExceeded() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, in TextSearchRequest) (*TextSearchResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}

func newAPIError(code int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: code, Message: strings.TrimSpace(string(body))}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Status != "" {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
