package rag

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
	"pdf-rag/internal/streaming"
)

var ErrEmptyQuery = errors.New("query must not be empty")

// Searcher finds the chunks relevant to a question.
type Searcher interface {
	Retrieve(ctx context.Context, query string, documentIDs []string) (Retrieval, error)
}

// Generator streams an answer for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt models.Prompt) iter.Seq2[string, error]
}

type ChatRequest struct {
	Query       string                    `json:"query"`
	DocumentIDs []string                  `json:"document_ids,omitempty"`
	History     []models.ConversationTurn `json:"chat_history,omitempty"`
}

type RAG struct {
	searcher     Searcher
	generator    Generator
	historyTurns int
}

func NewRAG(searcher Searcher, generator Generator, historyTurns int) *RAG {
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &RAG{searcher: searcher, generator: generator, historyTurns: historyTurns}
}

// Answer writes the full event stream for req to w. Whatever happens, the
// stream ends with a done event; failures are reported as an error event
// first and also returned.
func (r *RAG) Answer(ctx context.Context, req ChatRequest, w *streaming.Writer) error {
	err := r.answer(ctx, req, w)
	if err == nil {
		return nil
	}
	log.Error().Err(err).Str("query", req.Query).Msg("Chat error")
	if !w.Closed() {
		if werr := w.Error("An error occurred: " + err.Error()); werr != nil {
			log.Debug().Err(werr).Msg("Could not write error event")
		}
		if werr := w.Done(); werr != nil {
			log.Debug().Err(werr).Msg("Could not write done event")
		}
	}
	return err
}

func (r *RAG) answer(ctx context.Context, req ChatRequest, w *streaming.Writer) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ErrEmptyQuery
	}

	t0 := time.Now()
	retrieval, err := r.searcher.Retrieve(ctx, query, req.DocumentIDs)
	if err != nil {
		return err
	}
	log.Info().Dur("took", time.Since(t0)).Int("chunks", len(retrieval.Chunks)).Msg("Retrieval finished")

	if retrieval.Empty() {
		if err := w.Token(models.NoResultsMessage); err != nil {
			return err
		}
		return w.Done()
	}

	prompt := BuildPrompt(query, retrieval.Chunks, req.History, r.historyTurns)

	t1 := time.Now()
	first := true
	var full strings.Builder
	for token, err := range r.generator.Stream(ctx, prompt) {
		if err != nil {
			return err
		}
		if first {
			log.Info().Dur("took", time.Since(t1)).Msg("First token")
			first = false
		}
		full.WriteString(token)
		if err := w.Token(token); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return models.GenerationError("generation cancelled", err)
	}

	citations := ReconcileCitations(full.String(), retrieval.Chunks)
	log.Debug().Int("citations", len(citations)).Dur("generation", time.Since(t1)).Msg("Answer complete")
	if err := w.Citations(citations); err != nil {
		return err
	}
	return w.Done()
}
