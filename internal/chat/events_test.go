package chat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dinescout/internal/model"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestEventWriter_Order(t *testing.T) {
	var out flushRecorder
	ew := NewEventWriter(&out)

	require.NoError(t, ew.Metadata([]model.Restaurant{restaurant("a", "Lhardy")}))
	assert.ErrorIs(t, ew.Metadata(nil), ErrOutOfOrder, "metadata is sent at most once")
	require.NoError(t, ew.Delta([]byte(`{"choices":[]}`)))
	require.NoError(t, ew.Done())

	assert.ErrorIs(t, ew.Delta([]byte(`{}`)), ErrOutOfOrder)
	assert.ErrorIs(t, ew.Error("x", ""), ErrOutOfOrder)
	assert.ErrorIs(t, ew.Done(), ErrOutOfOrder)

	assert.Equal(t, []string{"metadata", "delta", "done"}, kinds(parseEvents(t, out.String())))
	assert.Equal(t, 3, out.flushes)
}

func TestEventWriter_MetadataAfterDeltaRejected(t *testing.T) {
	var out bytes.Buffer
	ew := NewEventWriter(&out)

	require.NoError(t, ew.Delta([]byte(`{"choices":[]}`)))
	assert.ErrorIs(t, ew.Metadata([]model.Restaurant{restaurant("a", "Lhardy")}), ErrOutOfOrder)
	assert.NotContains(t, out.String(), "metadata")
}

func TestEventWriter_ErrorEndsStream(t *testing.T) {
	var out bytes.Buffer
	ew := NewEventWriter(&out)

	require.NoError(t, ew.Error("boom", "ex-1"))
	assert.Equal(t, "data: {\"type\":\"error\",\"error\":\"boom\",\"exchange_id\":\"ex-1\"}\n\n", out.String())
	assert.ErrorIs(t, ew.Done(), ErrOutOfOrder)
}

func TestEventWriter_MultiLinePayload(t *testing.T) {
	var out bytes.Buffer
	ew := NewEventWriter(&out)

	require.NoError(t, ew.Delta([]byte("line1\nline2")))
	assert.Equal(t, "data: line1\ndata: line2\n\n", out.String())
}
