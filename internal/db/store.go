package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/store"
)

const insertBatchSize = 500

// Store keeps documents and chunk vectors in Postgres with pgvector.
type Store struct {
	db *bun.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		doc.ID = id
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = models.StatusProcessing
	}
	row := fromDocument(doc)
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	row := new(Document)
	err := s.db.NewSelect().Model(row).Where("d.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc := row.toModel()
	return &doc, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	res, err := s.db.NewUpdate().
		Model((*Document)(nil)).
		Set("status = ?", string(status)).
		Set("chunk_count = ?", chunkCount).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReadyDocumentIDs(ctx context.Context, ids []string) ([]string, error) {
	q := s.db.NewSelect().
		Model((*Document)(nil)).
		Column("id").
		Where("status = ?", string(models.StatusReady))
	if len(ids) > 0 {
		valid := make([]string, 0, len(ids))
		for _, id := range ids {
			if validID(id) {
				valid = append(valid, id)
			}
		}
		if len(valid) == 0 {
			return nil, nil
		}
		q = q.Where("id IN (?)", bun.In(valid))
	}
	var out []string
	if err := q.Scan(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to list ready documents: %w", err)
	}
	return out, nil
}

func (s *Store) ListDocuments(ctx context.Context, f store.ListFilter) ([]models.Document, int, error) {
	f = f.Normalize()
	var rows []Document
	q := s.db.NewSelect().Model(&rows).Order("created_at DESC").Offset(f.Offset()).Limit(f.Limit)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := make([]models.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toModel()
	}
	return docs, total, nil
}

// DeleteDocument removes the document; its chunks go with it through the
// foreign key cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	res, err := s.db.NewDelete().Model((*Document)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]Chunk, len(chunks))
	for i := range chunks {
		if chunks[i].ID == "" {
			id, err := helper.GenerateUUID()
			if err != nil {
				return err
			}
			chunks[i].ID = id
		}
		rows[i] = fromChunk(chunks[i])
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			batch := rows[start:end]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
		log.Debug().Int("chunks", len(rows)).Msg("Inserted chunks")
		return nil
	})
}

func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	if !validID(documentID) {
		return nil
	}
	_, err := s.db.NewDelete().Model((*Chunk)(nil)).Where("document_id = ?", documentID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

type chunkHit struct {
	Chunk      `bun:",extend"`
	Similarity float64 `bun:"similarity,scanonly"`
}

func (s *Store) searchQuery(q store.SearchQuery, dest *[]chunkHit) *bun.SelectQuery {
	vec := pgvector.NewVector(q.Vector)
	sq := s.db.NewSelect().
		Model(dest).
		ColumnExpr("c.id, c.document_id, c.source_file, c.page_number, c.content, c.chunk_index").
		ColumnExpr("1 - (c.embedding <=> ?) AS similarity", vec).
		Where("1 - (c.embedding <=> ?) > ?", vec, q.Threshold).
		OrderExpr("c.embedding <=> ? ASC, c.chunk_index ASC", vec).
		Limit(q.TopK)
	if len(q.Scope) > 0 {
		sq = sq.Where("c.document_id IN (?)", bun.In(q.Scope))
	}
	return sq
}

func (s *Store) SimilaritySearch(ctx context.Context, q store.SearchQuery) ([]models.RetrievedChunk, error) {
	if len(q.Vector) == 0 || q.TopK <= 0 {
		return nil, nil
	}
	var hits []chunkHit
	if err := s.searchQuery(q, &hits).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	out := make([]models.RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = models.RetrievedChunk{Chunk: h.Chunk.toModel(), Similarity: h.Similarity}
	}
	return out, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func fromDocument(d *models.Document) *Document {
	return &Document{
		ID:         d.ID,
		Filename:   d.Filename,
		FileSize:   d.FileSize,
		PageCount:  d.PageCount,
		Status:     string(d.Status),
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}

func (d Document) toModel() models.Document {
	return models.Document{
		ID:         d.ID,
		Filename:   d.Filename,
		FileSize:   d.FileSize,
		PageCount:  d.PageCount,
		Status:     models.DocumentStatus(d.Status),
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}

func fromChunk(c models.Chunk) Chunk {
	return Chunk{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		SourceFile: c.SourceFile,
		PageNumber: c.PageNumber,
		Content:    c.Content,
		ChunkIndex: c.ChunkIndex,
		Embedding:  pgvector.NewVector(c.Embedding),
	}
}

func (c Chunk) toModel() models.Chunk {
	return models.Chunk{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		SourceFile: c.SourceFile,
		PageNumber: c.PageNumber,
		Content:    c.Content,
		ChunkIndex: c.ChunkIndex,
		Embedding:  c.Embedding.Slice(),
	}
}
