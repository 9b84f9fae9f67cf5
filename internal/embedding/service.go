package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/models"
)

// TextEmbedder maps texts to fixed-length vectors.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Service owns the shared embedding model handle. The handle is created on
// first use under a mutex and reused by every caller afterwards. A failed
// load is not cached, so the next call tries again.
type Service struct {
	load      Loader
	batchSize int
	dimension int
	timeout   time.Duration

	mu       sync.Mutex
	embedder embeddings.Embedder
}

type Option func(*Service)

func WithBatchSize(n int) Option { return func(s *Service) { s.batchSize = n } }

// WithDimension makes the service reject vectors of any other length.
func WithDimension(n int) Option { return func(s *Service) { s.dimension = n } }

func WithTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

func NewService(load Loader, opts ...Option) *Service {
	s := &Service{load: load, batchSize: 32}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchSize <= 0 {
		s.batchSize = 32
	}
	return s
}

func (s *Service) Dimension() int { return s.dimension }

func (s *Service) model(ctx context.Context) (embeddings.Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder != nil {
		return s.embedder, nil
	}
	start := time.Now()
	e, err := s.load(ctx)
	if err != nil {
		return nil, models.ModelError("embedding model unavailable", err)
	}
	if e == nil {
		return nil, models.ModelError("embedding model unavailable", fmt.Errorf("loader returned no embedder"))
	}
	log.Info().Dur("took", time.Since(start)).Msg("Embedding model loaded")
	s.embedder = e
	return e, nil
}

// Embed returns one vector per input text, in input order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e, err := s.model(ctx)
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		vectors, err := e.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, models.ModelError("failed to generate embeddings", err)
		}
		if len(vectors) != end-start {
			return nil, models.ModelError("failed to generate embeddings",
				fmt.Errorf("expected %d vectors, got %d", end-start, len(vectors)))
		}
		for _, v := range vectors {
			if s.dimension > 0 && len(v) != s.dimension {
				return nil, models.ModelError("failed to generate embeddings",
					fmt.Errorf("expected dimension %d, got %d", s.dimension, len(v)))
			}
			out = append(out, v)
		}
		log.Debug().Int("batch_start", start).Int("batch_size", end-start).Msg("Embedded batch")
	}
	return out, nil
}

func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
