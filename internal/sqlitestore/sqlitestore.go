package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	file_size   INTEGER NOT NULL,
	page_count  INTEGER NOT NULL,
	status      TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_created_at_idx ON documents(created_at DESC);
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	source_file TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	content     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	dim         INTEGER NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_document_id_idx ON chunks(document_id);
`

// Store keeps documents and chunks in SQLite. Similarity is computed in Go
// over the stored vectors, which is fine for a single-user corpus.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if path != ":memory:" {
		if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(id, filename, file_size, page_count, status, chunk_count, created_at) VALUES(?,?,?,?,?,?,?)`,
		doc.ID, doc.Filename, doc.FileSize, doc.PageCount, string(doc.Status), doc.ChunkCount, doc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, filename, file_size, page_count, status, chunk_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (models.Document, error) {
	var (
		d       models.Document
		status  string
		created int64
	)
	if err := row.Scan(&d.ID, &d.Filename, &d.FileSize, &d.PageCount, &status, &d.ChunkCount, &created); err != nil {
		return d, err
	}
	d.Status = models.DocumentStatus(status)
	d.CreatedAt = time.Unix(0, created).UTC()
	return d, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=?, chunk_count=? WHERE id=?`, string(status), chunkCount, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReadyDocumentIDs(ctx context.Context, ids []string) ([]string, error) {
	query := `SELECT id FROM documents WHERE status=?`
	args := []any{string(models.StatusReady)}
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready documents: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ListDocuments(ctx context.Context, f store.ListFilter) ([]models.Document, int, error) {
	f = f.Normalize()
	where := ""
	var args []any
	if f.Status != "" {
		where = ` WHERE status=?`
		args = append(args, string(f.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	var docs []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

// DeleteDocument removes the document and its chunks in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id=?`, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(id, document_id, source_file, page_number, content, chunk_index, dim, embedding) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		if chunks[i].ID == "" {
			id, err := helper.GenerateUUID()
			if err != nil {
				return err
			}
			chunks[i].ID = id
		}
		c := chunks[i]
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.SourceFile, c.PageNumber, c.Content, c.ChunkIndex,
			len(c.Embedding), EncodeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug().Int("chunks", len(chunks)).Msg("Inserted chunks")
	return nil
}

func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id=?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, q store.SearchQuery) ([]models.RetrievedChunk, error) {
	if len(q.Vector) == 0 || q.TopK <= 0 {
		return nil, nil
	}
	query := `SELECT id, document_id, source_file, page_number, content, chunk_index, embedding FROM chunks WHERE dim=?`
	args := []any{len(q.Vector)}
	if len(q.Scope) > 0 {
		query += ` AND document_id IN (` + placeholders(len(q.Scope)) + `)`
		for _, id := range q.Scope {
			args = append(args, id)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.RetrievedChunk
	for rows.Next() {
		var (
			c    models.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SourceFile, &c.PageNumber, &c.Content, &c.ChunkIndex, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		sim, err := CosineSimilarity(q.Vector, vec)
		if err != nil {
			continue
		}
		if sim > q.Threshold {
			hits = append(hits, models.RetrievedChunk{Chunk: c, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.RankChunks(hits, q.Threshold, q.TopK), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// EncodeEmbedding packs a vector as little-endian float32s.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
