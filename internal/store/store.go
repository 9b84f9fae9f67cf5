package store

import (
	"context"
	"errors"
	"sort"

	"pdf-rag/internal/models"
)

var ErrNotFound = errors.New("document not found")

// SearchQuery describes one similarity search. An empty Scope searches
// every document.
type SearchQuery struct {
	Vector    []float32
	Scope     []string
	Threshold float64
	TopK      int
}

// ChunkIndex stores chunk vectors and answers similarity searches.
type ChunkIndex interface {
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	SimilaritySearch(ctx context.Context, q SearchQuery) ([]models.RetrievedChunk, error)
	DeleteChunks(ctx context.Context, documentID string) error
}

type ListFilter struct {
	Status models.DocumentStatus
	Page   int
	Limit  int
}

// Normalize clamps paging to 1-based pages of 1..100 items.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

// DocumentRegistry tracks uploaded documents and their status.
type DocumentRegistry interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int) error
	// ReadyDocumentIDs returns the ready documents among ids, or every
	// ready document when ids is empty.
	ReadyDocumentIDs(ctx context.Context, ids []string) ([]string, error)
	ListDocuments(ctx context.Context, f ListFilter) ([]models.Document, int, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Store is a registry that also indexes chunks.
type Store interface {
	DocumentRegistry
	ChunkIndex
	Close() error
}

// RankChunks keeps chunks strictly above threshold, orders them by
// similarity descending then chunk index ascending, and keeps topK.
func RankChunks(chunks []models.RetrievedChunk, threshold float64, topK int) []models.RetrievedChunk {
	out := chunks[:0:0]
	for _, c := range chunks {
		if c.Similarity > threshold {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
