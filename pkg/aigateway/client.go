// Package aigateway streams chat completions from an OpenAI-compatible gateway
// over server-sent events.
package aigateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://ai.gateway.lovable.dev/v1"
	defaultModel   = "google/gemini-2.5-flash"
)

// Client streams chat completions.
type Client interface {
	StreamChat(ctx context.Context, req ChatCompletionRequest) (*Stream, error)
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusError is returned when the gateway rejects the request.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("aigateway: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client. Streams are bounded by the
// request context, so the client should not set Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a gateway client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) StreamChat(ctx context.Context, req ChatCompletionRequest) (*Stream, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "aigateway: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "aigateway: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "aigateway: send request")
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return NewStream(resp.Body), nil
}

// Stream iterates the data payloads of a server-sent event stream until the
// "[DONE]" sentinel.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	data   []byte
	err    error
	done   bool
}

// NewStream reads events from body. Close releases it.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, reader: bufio.NewReader(body)}
}

// Next advances to the next data payload. It returns false at "[DONE]", at the
// end of the body or on error; Err distinguishes the cases.
func (s *Stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	var data [][]byte
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && (err != io.EOF || len(line) == 0) {
			if err == io.EOF && len(data) > 0 {
				// Body ended without the event's closing blank line.
				line = nil
			} else {
				if err == io.EOF {
					s.err = eris.New("aigateway: stream ended before [DONE]")
				} else {
					s.err = eris.Wrap(err, "aigateway: read stream")
				}
				return false
			}
		}
		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) == 0:
			if len(data) == 0 {
				continue
			}
			payload := bytes.Join(data, []byte("\n"))
			if bytes.Equal(payload, []byte("[DONE]")) {
				s.done = true
				return false
			}
			s.data = payload
			return true
		case line[0] == ':':
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("data:")):
			data = append(data, bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" ")))
		}
	}
}

// Data returns the current payload. It is valid until the next call to Next.
func (s *Stream) Data() []byte { return s.data }

// Done reports whether the stream ended with the "[DONE]" sentinel.
func (s *Stream) Done() bool { return s.done }

// Err returns the error that stopped iteration, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying connection.
func (s *Stream) Close() error { return s.body.Close() }

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DeltaText extracts the text delta of a chat.completion.chunk payload. A
// payload carrying an "error" object is returned as an error.
func DeltaText(payload []byte) (string, error) {
	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", eris.Wrap(err, "aigateway: decode chunk")
	}
	if c.Error != nil {
		return "", eris.Errorf("aigateway: upstream error: %s", c.Error.Message)
	}
	if len(c.Choices) == 0 {
		return "", nil
	}
	return c.Choices[0].Delta.Content, nil
}

// DeltaPayload builds a chat.completion.chunk payload carrying text, for
// generators that must speak the same event convention.
func DeltaPayload(text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"object":  "chat.completion.chunk",
		"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": text}}},
	})
	return b
}
