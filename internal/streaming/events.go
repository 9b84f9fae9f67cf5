package streaming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"

	"pdf-rag/internal/models"
)

type EventType string

const (
	TypeToken     EventType = "token"
	TypeCitations EventType = "citations"
	TypeDone      EventType = "done"
	TypeError     EventType = "error"
)

// Event is one message of the answer stream.
type Event struct {
	Type    EventType         `json:"type"`
	Content string            `json:"content,omitempty"`
	Sources []models.Citation `json:"sources,omitempty"`
}

type contentPayload struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

type sourcesPayload struct {
	Type    EventType         `json:"type"`
	Sources []models.Citation `json:"sources"`
}

type donePayload struct {
	Type EventType `json:"type"`
}

// Encode renders e as a single "data: <json>\n\n" frame.
func Encode(e Event) ([]byte, error) {
	var payload any
	switch e.Type {
	case TypeToken, TypeError:
		payload = contentPayload{Type: e.Type, Content: e.Content}
	case TypeCitations:
		sources := e.Sources
		if sources == nil {
			sources = []models.Citation{}
		}
		payload = sourcesPayload{Type: e.Type, Sources: sources}
	case TypeDone:
		payload = donePayload{Type: e.Type}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	frame := make([]byte, 0, len(b)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, b...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// ReadEvents decodes frames written by Encode. Lines that are not data
// lines are skipped.
func ReadEvents(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			var e Event
			if err := json.Unmarshal(line[len("data: "):], &e); err != nil {
				if !yield(Event{}, fmt.Errorf("failed to decode event: %w", err)) {
					return
				}
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Event{}, err)
		}
	}
}

// SetHeaders prepares an HTTP response for event streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
