package rag

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
	"pdf-rag/internal/store"
)

// QueryEmbedder turns a question into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retrieval is the outcome of a search. An empty Retrieval is a normal
// answer, not a failure.
type Retrieval struct {
	Chunks []models.RetrievedChunk
}

func (r Retrieval) Empty() bool { return len(r.Chunks) == 0 }

type Retriever struct {
	embedder  QueryEmbedder
	registry  store.DocumentRegistry
	index     store.ChunkIndex
	topK      int
	threshold float64
	timeout   time.Duration
}

func NewRetriever(embedder QueryEmbedder, registry store.DocumentRegistry, index store.ChunkIndex, topK int, threshold float64, timeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		embedder:  embedder,
		registry:  registry,
		index:     index,
		topK:      topK,
		threshold: threshold,
		timeout:   timeout,
	}
}

// Retrieve returns at most topK chunks scoring above the threshold, best
// first, from ready documents within documentIDs (all ready documents when
// documentIDs is empty).
func (r *Retriever) Retrieve(ctx context.Context, query string, documentIDs []string) (Retrieval, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	scope, err := r.registry.ReadyDocumentIDs(ctx, documentIDs)
	if err != nil {
		return Retrieval{}, models.RetrievalError("failed to resolve document scope", err)
	}
	if len(scope) == 0 {
		log.Info().Strs("document_ids", documentIDs).Msg("No ready documents to search")
		return Retrieval{}, nil
	}

	t0 := time.Now()
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		var f *models.Failure
		if errors.As(err, &f) {
			return Retrieval{}, err
		}
		return Retrieval{}, models.ModelError("failed to embed query", err)
	}
	t1 := time.Now()

	hits, err := r.index.SimilaritySearch(ctx, store.SearchQuery{
		Vector:    vector,
		Scope:     scope,
		Threshold: r.threshold,
		TopK:      r.topK,
	})
	if err != nil {
		return Retrieval{}, models.RetrievalError("similarity search failed", err)
	}
	hits = store.RankChunks(hits, r.threshold, r.topK)

	log.Debug().
		Dur("embedding", t1.Sub(t0)).
		Dur("search", time.Since(t1)).
		Int("chunks", len(hits)).
		Msg("Retrieved chunks")
	return Retrieval{Chunks: hits}, nil
}
