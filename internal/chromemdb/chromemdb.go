package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/store"
)

// metadata keys stored with every chunk
const (
	metaDocumentID = "document_id"
	metaSourceFile = "source_file"
	metaPageNumber = "page_number"
	metaChunkIndex = "chunk_index"
)

const compress = false

var errNoEmbedding = errors.New("chunk embeddings must be computed before indexing")

// VectorDBManager keeps chunk vectors in an embedded chromem-go database.
// It serves only as a chunk index; documents live in the relational store.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ store.ChunkIndex = (*VectorDBManager)(nil)

// NewVectorDBManager opens the database at dbPath (or an in-memory one) and
// gets or creates the named collection.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool) (*VectorDBManager, error) {
	var db *chromem.DB
	if inMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(dbPath); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{db: db}
	if _, err := m.GetOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// precomputed refuses to embed; every chunk and query arrives with a vector.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

func (m *VectorDBManager) Count() int { return m.collection.Count() }

func (m *VectorDBManager) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			return errNoEmbedding
		}
		if chunks[i].ID == "" {
			id, err := helper.GenerateUUID()
			if err != nil {
				return err
			}
			chunks[i].ID = id
		}
		c := chunks[i]
		docs[i] = chromem.Document{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				metaDocumentID: c.DocumentID,
				metaSourceFile: c.SourceFile,
				metaPageNumber: strconv.Itoa(c.PageNumber),
				metaChunkIndex: strconv.Itoa(c.ChunkIndex),
			},
			Embedding: c.Embedding,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("chunks", len(docs)).Str("collection", m.collection.Name).Msg("Indexed chunks")
	return nil
}

// SimilaritySearch ranks every chunk in the collection and filters the
// result by scope and threshold.
func (m *VectorDBManager) SimilaritySearch(ctx context.Context, q store.SearchQuery) ([]models.RetrievedChunk, error) {
	count := m.collection.Count()
	if len(q.Vector) == 0 || q.TopK <= 0 || count == 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: q.Vector,
		NResults:       count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	var scope map[string]bool
	if len(q.Scope) > 0 {
		scope = make(map[string]bool, len(q.Scope))
		for _, id := range q.Scope {
			scope[id] = true
		}
	}

	hits := make([]models.RetrievedChunk, 0, q.TopK)
	for _, r := range results {
		docID := r.Metadata[metaDocumentID]
		if scope != nil && !scope[docID] {
			continue
		}
		page, err := strconv.Atoi(r.Metadata[metaPageNumber])
		if err != nil {
			log.Warn().Str("id", r.ID).Msg("Chunk without page number, skipping")
			continue
		}
		index, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		hits = append(hits, models.RetrievedChunk{
			Chunk: models.Chunk{
				ID:         r.ID,
				DocumentID: docID,
				SourceFile: r.Metadata[metaSourceFile],
				PageNumber: page,
				Content:    r.Content,
				ChunkIndex: index,
			},
			Similarity: float64(r.Similarity),
		})
	}
	return store.RankChunks(hits, q.Threshold, q.TopK), nil
}

func (m *VectorDBManager) DeleteChunks(ctx context.Context, documentID string) error {
	if documentID == "" {
		return nil
	}
	if err := m.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Export writes the collection to filePath, encrypted when key is set
// (chromem requires a 32 byte key).
func (m *VectorDBManager) Export(filePath, key string) error {
	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", filePath).
		Bool("encrypted", key != "").
		Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, compress, key, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the collection from a file written by Export.
func (m *VectorDBManager) Import(filePath, key string) error {
	if err := m.db.ImportFromFile(filePath, key, m.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err := m.GetOrCreateCollection(m.collection.Name)
	return err
}
