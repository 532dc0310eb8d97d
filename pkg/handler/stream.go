package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Event is one server-sent event. Data is encoded as JSON.
type Event struct {
	ID   string
	Name string
	Data any
}

// StreamOption configures a Stream response.
type StreamOption func(*streamResponse)

// WithHeartbeat writes a comment line every d so proxies keep the
// connection open.
func WithHeartbeat(d time.Duration) StreamOption {
	return func(s *streamResponse) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithOnClose registers fn to run when the stream ends for any reason.
func WithOnClose(fn func()) StreamOption {
	return func(s *streamResponse) {
		if fn != nil {
			s.onClose = append(s.onClose, fn)
		}
	}
}

type streamResponse struct {
	events    <-chan Event
	heartbeat time.Duration
	onClose   []func()
}

// Stream renders a text/event-stream response fed by events. It ends when
// events is closed or the client goes away.
func Stream(events <-chan Event, opts ...StreamOption) Response {
	s := &streamResponse{events: events}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *streamResponse) Render(w http.ResponseWriter, r *http.Request) error {
	defer func() {
		for _, fn := range s.onClose {
			fn()
		}
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-tick:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				if r.Context().Err() != nil {
					return nil
				}
				return err
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Name)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)

	_, err = io.WriteString(w, b.String())
	return err
}
