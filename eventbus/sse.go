package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/llmgateway/gatewayerr"
	"go.uber.org/zap"
)

// SSEBridge relays Bus events for one session to an HTTP client as
// text/event-stream frames. Header setup and flush discipline are
// grounded nearly verbatim on the teacher's api/handlers/chat.go
// HandleStream.
type SSEBridge struct {
	bus    *Bus
	logger *zap.Logger
}

// NewSSEBridge builds an SSEBridge over bus.
func NewSSEBridge(bus *Bus, logger *zap.Logger) *SSEBridge {
	return &SSEBridge{bus: bus, logger: logger}
}

// Serve subscribes to sessionID's channel, awaits the worker's handshake
// ack, and then streams every event to w until the request context is
// cancelled, the channel closes, no event arrives for 60 seconds, or a
// FinalAnswerStreamEnd or error event has been written. It sets the SSE
// response headers itself; callers must not have written to w beforehand.
//
// Per SPEC_FULL.md §4.4/§8, if worker_ack is not published within the
// bus's handshake window (10s by default) Serve returns a
// *gatewayerr.Error of kind WORKER_TIMEOUT before writing anything to w,
// so the caller can still answer with a clean 504 JSON envelope.
func (b *SSEBridge) Serve(ctx context.Context, w http.ResponseWriter, sessionID string) error {
	sub := b.bus.Subscribe(ctx, sessionID)
	defer sub.Close()

	if err := b.bus.AwaitWorkerAck(ctx, sub); err != nil {
		return gatewayerr.New(gatewayerr.KindWorkerTimeout, "worker did not acknowledge the session subscription in time").
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithCause(err)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return errUnsupportedFlush
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	const readTimeout = 60 * time.Second
	idle := time.NewTimer(readTimeout)
	defer idle.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			idle.Reset(readTimeout)

			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("sse: dropping malformed event", zap.Error(err))
				continue
			}
			if evt.Type == EventWorkerAck {
				continue // handshake-only, never forwarded to the client
			}

			if err := writeSSEFrame(w, evt); err != nil {
				return err
			}
			flusher.Flush()

			if evt.Type == EventFinalAnswerStreamEnd || evt.Type == EventError {
				return nil
			}
		}
	}
}

var errUnsupportedFlush = errors.New("eventbus: response writer does not support flushing")

// sseFrame is the wire envelope SPEC_FULL.md §4.4/§6 requires on every SSE
// frame: exactly {event_type, payload}, none of Event's other internal
// bookkeeping fields.
type sseFrame struct {
	EventType EventType `json:"event_type"`
	Payload   any       `json:"payload,omitempty"`
}

// writeSSEFrame writes one "data: <json>\n\n" frame. encoding/json writes
// non-ASCII payload text verbatim; SetEscapeHTML(false) additionally keeps
// '<', '>' and '&' (as in <THOUGHT>-style tags) from being written as
// JSON unicode escape sequences (SPEC_FULL.md §4.4).
func writeSSEFrame(w http.ResponseWriter, evt Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sseFrame{EventType: evt.Type, Payload: evt.Payload}); err != nil {
		return err
	}

	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
