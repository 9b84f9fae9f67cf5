package streaming

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"pdf-rag/internal/models"
)

var (
	ErrStreamClosed = errors.New("stream already finished")
	ErrOutOfOrder   = errors.New("event out of order")
)

type state int

const (
	stateOpen state = iota
	stateCited
	stateFailed
	stateClosed
)

// Writer emits events in the only order clients accept:
//
//	token* citations? done
//	token* error done
//
// Anything else is rejected without writing.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher interface{ Flush() }
	state   state
}

// NewWriter wraps w. When w can flush (an http.ResponseWriter, a
// bufio.Writer) every event is flushed as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	s := &Writer{w: w}
	if f, ok := w.(interface{ Flush() }); ok {
		s.flusher = f
	} else if f, ok := w.(interface{ Flush() error }); ok {
		s.flusher = flushFunc(func() { _ = f.Flush() })
	}
	return s
}

type flushFunc func()

func (f flushFunc) Flush() { f() }

func (s *Writer) Token(content string) error {
	return s.emit(Event{Type: TypeToken, Content: content}, stateOpen)
}

func (s *Writer) Citations(sources []models.Citation) error {
	return s.emit(Event{Type: TypeCitations, Sources: sources}, stateOpen)
}

func (s *Writer) Error(message string) error {
	return s.emit(Event{Type: TypeError, Content: message}, stateOpen, stateCited)
}

func (s *Writer) Done() error {
	return s.emit(Event{Type: TypeDone}, stateOpen, stateCited, stateFailed)
}

// Closed reports whether done has been written.
func (s *Writer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}

func (s *Writer) emit(e Event, allowed ...state) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrStreamClosed
	}
	ok := false
	for _, st := range allowed {
		if s.state == st {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutOfOrder, e.Type)
	}

	frame, err := Encode(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}

	switch e.Type {
	case TypeCitations:
		s.state = stateCited
	case TypeError:
		s.state = stateFailed
	case TypeDone:
		s.state = stateClosed
	}
	return nil
}
