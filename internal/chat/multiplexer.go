// Package chat serves conversational restaurant answers: structured search
// results sent as one metadata event, followed by the generated text relayed
// as it streams.
package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/dinescout/internal/extract"
	"github.com/sells-group/dinescout/internal/geo"
	"github.com/sells-group/dinescout/internal/metrics"
	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/search"
	"github.com/sells-group/dinescout/pkg/aigateway"
)

// ErrNoUserMessage rejects a conversation that does not end with a user turn.
var ErrNoUserMessage = eris.New("chat: conversation must end with a user message")

// GenerationError reports that the generative service failed or timed out.
// The client has already received an error event when it is returned.
type GenerationError struct {
	ExchangeID string
	Err        error
}

func (e *GenerationError) Error() string {
	return "chat: generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Searcher is the search surface the multiplexer consumes.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// Request is one chat turn with its history.
type Request struct {
	Messages []Message `json:"messages" validate:"required,min=1,max=50,dive"`
}

// Exchange records what one request produced.
type Exchange struct {
	ID     string
	Intent Intent
	// Records were sent as the metadata event.
	Records []model.Restaurant
	Source  search.Source
	// Extracted were recovered from the answer when no metadata was sent.
	Extracted []model.Restaurant
	Answer    string
}

// Multiplexer merges search results and a generated answer into one stream.
type Multiplexer struct {
	searcher   Searcher
	gen        Generator
	classifier *Classifier
	extractor  *extract.Extractor
	regionName string
	timeout    time.Duration
	maxResults int
	maxHistory int
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithTimeout bounds each exchange, search and generation included.
func WithTimeout(d time.Duration) Option {
	return func(m *Multiplexer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMaxResults caps the restaurants sent as metadata.
func WithMaxResults(n int) Option {
	return func(m *Multiplexer) {
		if n > 0 {
			m.maxResults = n
		}
	}
}

// WithHistory caps the conversation turns forwarded to the generator.
func WithHistory(n int) Option {
	return func(m *Multiplexer) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// New returns a Multiplexer for region. neighborhoods are the names the
// classifier recognizes in messages.
func New(searcher Searcher, gen Generator, region *geo.Region, neighborhoods []string, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		searcher:   searcher,
		gen:        gen,
		classifier: NewClassifier(neighborhoods),
		extractor:  extract.New(region),
		regionName: cases.Title(language.Spanish).String(region.Name()),
		timeout:    90 * time.Second,
		maxResults: 8,
		maxHistory: 20,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Serve answers req on w. Restaurant requests are searched before the
// generator is called, and any results are written as the first event. The
// returned error is a *GenerationError when the stream ended with an error
// event, or the write error when the client went away.
func (m *Multiplexer) Serve(ctx context.Context, w io.Writer, req Request) (*Exchange, error) {
	history := req.Messages
	if len(history) > m.maxHistory {
		history = history[len(history)-m.maxHistory:]
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, ErrNoUserMessage
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ex := &Exchange{ID: uuid.NewString()}
	log := zap.L().With(zap.String("exchange_id", ex.ID))
	ew := NewEventWriter(w)

	ex.Intent = m.classifier.Classify(history[len(history)-1].Content)
	if ex.Intent.Restaurant {
		res, err := m.searcher.Search(ctx, search.Request{
			Query:        ex.Intent.Query,
			Neighborhood: ex.Intent.Neighborhood,
			Filters:      ex.Intent.Filters,
			MaxResults:   m.maxResults,
		})
		switch {
		case err != nil:
			log.Warn("chat: search failed, answering without metadata", zap.Error(err))
		case !res.NoResults():
			ex.Records, ex.Source = res.Records, res.Source
			if len(ex.Records) > m.maxResults {
				ex.Records = ex.Records[:m.maxResults]
			}
			if err := ew.Metadata(ex.Records); err != nil {
				metrics.ChatExchanges.WithLabelValues("client_gone").Inc()
				return ex, err
			}
		}
	}

	stream, err := m.gen.Generate(ctx, buildPrompt(m.regionName, ex.ID, history, ex.Records))
	if err != nil {
		return ex, m.fail(ctx, ew, ex, err)
	}
	defer stream.Close() //nolint:errcheck

	var answer strings.Builder
	for stream.Next() {
		c := stream.Chunk()
		answer.WriteString(c.Text)
		if err := ew.Delta(c.Payload); err != nil {
			cancel()
			ex.Answer = answer.String()
			metrics.ChatExchanges.WithLabelValues("client_gone").Inc()
			log.Info("chat: client went away", zap.Error(err))
			return ex, err
		}
	}
	ex.Answer = answer.String()
	if err := stream.Err(); err != nil {
		return ex, m.fail(ctx, ew, ex, err)
	}
	if err := ctx.Err(); err != nil {
		return ex, m.fail(ctx, ew, ex, err)
	}

	if len(ex.Records) == 0 {
		if err := m.extractFallback(ew, ex); err != nil {
			metrics.ChatExchanges.WithLabelValues("client_gone").Inc()
			return ex, err
		}
	}
	if err := ew.Done(); err != nil {
		metrics.ChatExchanges.WithLabelValues("client_gone").Inc()
		return ex, err
	}
	metrics.ChatExchanges.WithLabelValues("completed").Inc()
	log.Info("chat: exchange completed",
		zap.Bool("restaurant_request", ex.Intent.Restaurant),
		zap.Int("metadata_records", len(ex.Records)),
		zap.Int("extracted_records", len(ex.Extracted)),
		zap.Int("answer_bytes", len(ex.Answer)),
	)
	return ex, nil
}

func (m *Multiplexer) extractFallback(ew *EventWriter, ex *Exchange) error {
	res := m.extractor.Extract(ex.Answer)
	for _, d := range res.Discarded {
		metrics.ExtractionDiscards.WithLabelValues(string(d.Reason)).Inc()
	}
	if !res.Found() {
		return nil
	}
	ex.Extracted = res.Restaurants
	return ew.Extracted(res.Restaurants)
}

// fail ends the stream with an error event unless the client is already gone.
func (m *Multiplexer) fail(ctx context.Context, ew *EventWriter, ex *Exchange, err error) error {
	outcome := "upstream_error"
	msg := clientMessage(err)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome, msg = "timeout", "the answer took too long"
	case ctx.Err() != nil:
		outcome = "client_gone"
	}
	metrics.ChatExchanges.WithLabelValues(outcome).Inc()
	zap.L().Warn("chat: generation failed",
		zap.String("exchange_id", ex.ID),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
	if outcome != "client_gone" {
		if werr := ew.Error(msg, ex.ID); werr != nil {
			zap.L().Debug("chat: write error event", zap.Error(werr))
		}
	}
	return &GenerationError{ExchangeID: ex.ID, Err: err}
}

func clientMessage(err error) string {
	var se *aigateway.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			return "the assistant is busy, try again shortly"
		case http.StatusPaymentRequired:
			return "the assistant is unavailable"
		}
	}
	return "the assistant failed to answer"
}
