package chat

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dinescout/pkg/aigateway"
	"github.com/sells-group/dinescout/pkg/anthropic"
)

// Chunk is one upstream event. Payload is relayed to the client unmodified;
// Text is its decoded delta.
type Chunk struct {
	Payload []byte
	Text    string
}

// TokenStream yields the chunks of one generated answer.
type TokenStream interface {
	Next() bool
	Chunk() Chunk
	Err() error
	Close() error
}

// Generator opens a streamed answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (TokenStream, error)
}

// GatewayGenerator streams from an OpenAI-compatible gateway.
type GatewayGenerator struct {
	client      aigateway.Client
	model       string
	temperature *float64
}

// NewGatewayGenerator returns a Generator backed by client. An empty model uses
// the client default.
func NewGatewayGenerator(client aigateway.Client, model string, temperature *float64) *GatewayGenerator {
	return &GatewayGenerator{client: client, model: model, temperature: temperature}
}

// Generate implements Generator.
func (g *GatewayGenerator) Generate(ctx context.Context, p Prompt) (TokenStream, error) {
	msgs := make([]aigateway.Message, 0, len(p.Messages)+1)
	msgs = append(msgs, aigateway.Message{Role: "system", Content: p.System()})
	for _, m := range p.Messages {
		msgs = append(msgs, aigateway.Message{Role: m.Role, Content: m.Content})
	}
	s, err := g.client.StreamChat(ctx, aigateway.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, eris.Wrap(err, "chat: open gateway stream")
	}
	return &gatewayStream{s: s}, nil
}

type gatewayStream struct {
	s     *aigateway.Stream
	chunk Chunk
	err   error
}

func (g *gatewayStream) Next() bool {
	if g.err != nil || !g.s.Next() {
		return false
	}
	payload := g.s.Data()
	text, err := aigateway.DeltaText(payload)
	if err != nil {
		g.err = err
		return false
	}
	g.chunk = Chunk{Payload: append([]byte(nil), payload...), Text: text}
	return true
}

func (g *gatewayStream) Chunk() Chunk { return g.chunk }

func (g *gatewayStream) Err() error {
	if g.err != nil {
		return g.err
	}
	return g.s.Err()
}

func (g *gatewayStream) Close() error { return g.s.Close() }

// AnthropicGenerator streams from the Anthropic Messages API and re-encodes
// text deltas in the gateway chunk format, so clients see one convention.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator returns a Generator backed by client.
func NewAnthropicGenerator(client anthropic.Client, model string, maxTokens int64) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicGenerator{client: client, model: model, maxTokens: maxTokens}
}

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, p Prompt) (TokenStream, error) {
	msgs := make([]anthropic.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		msgs = append(msgs, anthropic.Message{Role: m.Role, Content: m.Content})
	}
	s, err := g.client.StreamMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(p.Instructions, p.Context),
		Messages:  msgs,
	})
	if err != nil {
		return nil, eris.Wrap(err, "chat: open anthropic stream")
	}
	return &anthropicStream{s: s, model: g.model, exchangeID: p.ExchangeID}, nil
}

type anthropicStream struct {
	s          anthropic.TextStream
	model      string
	exchangeID string
	chunk      Chunk
}

func (a *anthropicStream) Next() bool {
	if !a.s.Next() {
		return false
	}
	text := a.s.Text()
	a.chunk = Chunk{Payload: aigateway.DeltaPayload(text), Text: text}
	return true
}

func (a *anthropicStream) Chunk() Chunk { return a.chunk }
func (a *anthropicStream) Err() error   { return a.s.Err() }

func (a *anthropicStream) Close() error {
	a.s.Usage().LogCost(a.model, a.exchangeID)
	return a.s.Close()
}
