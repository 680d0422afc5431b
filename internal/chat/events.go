package chat

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dinescout/internal/metrics"
	"github.com/sells-group/dinescout/internal/model"
)

// ErrOutOfOrder is returned when an event would break the stream order:
// metadata after the first text delta, a second metadata event, or anything
// after the stream ended.
var ErrOutOfOrder = eris.New("chat: event out of order")

type streamState int

const (
	stateAwaitMetadata streamState = iota
	stateStreamPassthrough
	stateDone
)

// Event types written besides the relayed text deltas.
const (
	EventMetadata  = "metadata"
	EventExtracted = "extracted"
	EventError     = "error"
)

type restaurantsEvent struct {
	Type        string             `json:"type"`
	Restaurants []model.Restaurant `json:"restaurants"`
}

type errorEvent struct {
	Type       string `json:"type"`
	Error      string `json:"error"`
	ExchangeID string `json:"exchange_id,omitempty"`
}

// EventWriter writes the server-sent event stream of one exchange and
// enforces its order: an optional metadata event, text deltas, an optional
// extracted or error event, then the end of the stream.
type EventWriter struct {
	mu    sync.Mutex
	w     io.Writer
	flush func()
	state streamState
}

// NewEventWriter writes events to w, flushing after each one when w supports
// it.
func NewEventWriter(w io.Writer) *EventWriter {
	ew := &EventWriter{w: w, flush: func() {}}
	if f, ok := w.(interface{ Flush() }); ok {
		ew.flush = f.Flush
	}
	return ew
}

// Metadata writes the structured results. It must precede every text delta
// and may be written once.
func (e *EventWriter) Metadata(records []model.Restaurant) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateAwaitMetadata {
		return ErrOutOfOrder
	}
	if err := e.writeJSON(restaurantsEvent{Type: EventMetadata, Restaurants: records}); err != nil {
		return err
	}
	e.state = stateStreamPassthrough
	metrics.StreamEvents.WithLabelValues(EventMetadata).Inc()
	return nil
}

// Delta relays an upstream payload unmodified.
func (e *EventWriter) Delta(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateDone {
		return ErrOutOfOrder
	}
	e.state = stateStreamPassthrough
	if err := e.write(payload); err != nil {
		return err
	}
	metrics.StreamEvents.WithLabelValues("delta").Inc()
	return nil
}

// Extracted writes records recovered from the answer text. It follows the
// text and is only valid when no metadata event was sent.
func (e *EventWriter) Extracted(records []model.Restaurant) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateDone {
		return ErrOutOfOrder
	}
	if err := e.writeJSON(restaurantsEvent{Type: EventExtracted, Restaurants: records}); err != nil {
		return err
	}
	e.state = stateStreamPassthrough
	metrics.StreamEvents.WithLabelValues(EventExtracted).Inc()
	return nil
}

// Error writes a terminal error event and ends the stream. No [DONE] follows.
func (e *EventWriter) Error(msg, exchangeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateDone {
		return ErrOutOfOrder
	}
	e.state = stateDone
	metrics.StreamEvents.WithLabelValues(EventError).Inc()
	return e.writeJSON(errorEvent{Type: EventError, Error: msg, ExchangeID: exchangeID})
}

// Done writes the [DONE] sentinel and ends the stream.
func (e *EventWriter) Done() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateDone {
		return ErrOutOfOrder
	}
	e.state = stateDone
	metrics.StreamEvents.WithLabelValues("done").Inc()
	return e.write([]byte("[DONE]"))
}

func (e *EventWriter) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "chat: encode event")
	}
	return e.write(b)
}

func (e *EventWriter) write(payload []byte) error {
	buf := make([]byte, 0, len(payload)+8)
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf = append(buf, "data: "...)
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	buf = append(buf, '\n')
	if _, err := e.w.Write(buf); err != nil {
		return eris.Wrap(err, "chat: write event")
	}
	e.flush()
	return nil
}
