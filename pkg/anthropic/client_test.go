package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEvent(w io.Writer, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data) //nolint:errcheck
}

func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL), option.WithMaxRetries(0))
}

func TestSDKClient_StreamMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		system, ok := body["system"].([]any)
		require.True(t, ok)
		require.Len(t, system, 2)
		assert.Contains(t, system[0], "cache_control")

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5-20250929","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1,"cache_read_input_tokens":8,"cache_creation_input_tokens":0}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeEvent(w, "ping", `{"type":"ping"}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Prueba "}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Casa Lucio."}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":7}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer ts.Close()

	stream, err := newTestClient(ts.URL).StreamMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 512,
		System:    BuildCachedSystemBlocks("instructions", "context"),
		Messages:  []Message{{Role: "user", Content: "cocido en Madrid"}},
	})
	require.NoError(t, err)
	defer stream.Close() //nolint:errcheck

	var parts []string
	for stream.Next() {
		parts = append(parts, stream.Text())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"Prueba ", "Casa Lucio."}, parts)
	assert.Equal(t, TokenUsage{InputTokens: 12, OutputTokens: 7, CacheReadInputTokens: 8}, stream.Usage())
}

func TestSDKClient_StreamMessage_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).StreamMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "hola"}},
	})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "anthropic: stream message"))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("stable", "")
	require.Len(t, blocks, 1)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)

	blocks = BuildCachedSystemBlocks("stable", "restaurants: ...")
	require.Len(t, blocks, 2)
	assert.Nil(t, blocks[1].CacheControl)
	assert.Equal(t, "restaurants: ...", blocks[1].Text)
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "system", Content: "c"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Equal(t, "user", string(out[2].Role))
}

func TestToSDKSystemBlocks_WithEmptyTTL(t *testing.T) {
	out := toSDKSystemBlocks([]SystemBlock{{Text: "x", CacheControl: &CacheControl{}}, {Text: "y"}})
	require.Len(t, out, 2)
	assert.Equal(t, "x", out[0].Text)
	assert.Equal(t, "", string(out[0].CacheControl.TTL))
	assert.Equal(t, "y", out[1].Text)
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		model string
		usage TokenUsage
		want  float64
	}{
		{"claude-haiku-4-5-20251001", TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 4.80},
		{"claude-sonnet-4-5-20250929", TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 18.00},
		{"claude-haiku-4-5-20251001", TokenUsage{InputTokens: 500_000, OutputTokens: 100_000, CacheCreationInputTokens: 200_000, CacheReadInputTokens: 300_000}, 1.024},
		{"unknown-model", TokenUsage{InputTokens: 1_000_000}, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 0.001, tt.model)
	}
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 100, OutputTokens: 50}.LogCost("unknown-model", "ex-1")
	})
}
