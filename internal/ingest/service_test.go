package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/sqlitestore"
	"pdf-rag/internal/store"
)

type fakeExtractor struct {
	pages []models.Page
	err   error
}

func (f fakeExtractor) ExtractPages([]byte) ([]models.Page, int, error) {
	return f.pages, len(f.pages), f.err
}

func (f fakeExtractor) PageCount([]byte) (int, error) {
	return len(f.pages), f.err
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

// brokenIndex stores the chunks and then reports a failure.
type brokenIndex struct {
	store.ChunkIndex
}

func (b brokenIndex) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if err := b.ChunkIndex.InsertChunks(ctx, chunks); err != nil {
		return err
	}
	return errors.New("disk full")
}

// syncQueue runs jobs inline.
type syncQueue struct {
	handle Handler
	err    error
}

func (q syncQueue) Submit(ctx context.Context, job Job) error {
	if q.err != nil {
		return q.err
	}
	res := q.handle(ctx, job)
	if job.OnDone != nil {
		job.OnDone(res)
	}
	return nil
}

var twoPages = []models.Page{
	{Number: 1, Text: "The warranty covers parts for two years."},
	{Number: 2, Text: "Labour is covered for ninety days."},
}

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(s *sqlitestore.Store, index store.ChunkIndex, ex parser.Extractor, emb fakeEmbedder) *Service {
	p := NewProcessor(s, index, ex, parser.NewChunker(200, 20), emb)
	return NewService(s, index, ex, syncQueue{handle: p.Process}, 1)
}

func chunksOf(t *testing.T, s *sqlitestore.Store, id string) []models.RetrievedChunk {
	t.Helper()
	hits, err := s.SimilaritySearch(context.Background(), store.SearchQuery{
		Vector: []float32{1, 0, 0}, Scope: []string{id}, Threshold: -1, TopK: 10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	return hits
}

func TestUploadIndexesDocument(t *testing.T) {
	s := openStore(t)
	svc := newTestService(s, s, fakeExtractor{pages: twoPages}, fakeEmbedder{})

	var res Result
	doc, err := svc.Upload(context.Background(), "warranty.PDF", []byte("%PDF-1.4"), func(r Result) { res = r })
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.PageCount != 2 || doc.Status != models.StatusProcessing {
		t.Fatalf("unexpected document %+v", doc)
	}
	if res.Err != nil || res.Status != models.StatusReady || res.ChunkCount != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	got, err := svc.Get(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusReady || got.ChunkCount != 2 {
		t.Fatalf("unexpected stored document %+v", got)
	}
	hits := chunksOf(t, s, doc.ID)
	if len(hits) != 2 || hits[0].PageNumber != 1 || hits[1].PageNumber != 2 {
		t.Fatalf("unexpected chunks %+v", hits)
	}
}

func TestUploadValidation(t *testing.T) {
	s := openStore(t)
	svc := newTestService(s, s, fakeExtractor{pages: twoPages}, fakeEmbedder{})
	ctx := context.Background()

	if _, err := svc.Upload(ctx, "notes.docx", []byte("x"), nil); !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
	big := []byte(strings.Repeat("x", 1<<20+1))
	if _, err := svc.Upload(ctx, "big.pdf", big, nil); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	bad := newTestService(s, s, fakeExtractor{err: errors.New("malformed xref")}, fakeEmbedder{})
	if _, err := bad.Upload(ctx, "broken.pdf", []byte("x"), nil); !errors.Is(err, ErrUnreadablePDF) {
		t.Fatalf("expected ErrUnreadablePDF, got %v", err)
	}

	docs, total, err := svc.List(ctx, store.ListFilter{})
	if err != nil || total != 0 || len(docs) != 0 {
		t.Fatalf("rejected uploads must not be recorded: %v %d %v", docs, total, err)
	}
}

func TestFailedIngestionLeavesNoChunks(t *testing.T) {
	s := openStore(t)
	svc := newTestService(s, brokenIndex{s}, fakeExtractor{pages: twoPages}, fakeEmbedder{})

	var res Result
	doc, err := svc.Upload(context.Background(), "a.pdf", []byte("x"), func(r Result) { res = r })
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Status != models.StatusError || !models.IsKind(res.Err, models.KindIngestionFailure) {
		t.Fatalf("unexpected result %+v", res)
	}
	got, _ := svc.Get(context.Background(), doc.ID)
	if got.Status != models.StatusError || got.ChunkCount != 0 {
		t.Fatalf("unexpected stored document %+v", got)
	}
	if hits := chunksOf(t, s, doc.ID); len(hits) != 0 {
		t.Fatalf("partial chunks left behind: %d", len(hits))
	}
}

func TestIngestionErrors(t *testing.T) {
	s := openStore(t)
	for name, svc := range map[string]*Service{
		"no text":         newTestService(s, s, fakeExtractor{pages: []models.Page{}}, fakeEmbedder{}),
		"embedding fails": newTestService(s, s, fakeExtractor{pages: twoPages}, fakeEmbedder{err: errors.New("refused")}),
	} {
		var res Result
		if _, err := svc.Upload(context.Background(), "x.pdf", []byte("x"), func(r Result) { res = r }); err != nil {
			t.Fatalf("%s: upload: %v", name, err)
		}
		if res.Status != models.StatusError || res.Err == nil {
			t.Errorf("%s: unexpected result %+v", name, res)
		}
	}
}

func TestUploadQueueFailureMarksError(t *testing.T) {
	s := openStore(t)
	svc := NewService(s, s, fakeExtractor{pages: twoPages}, syncQueue{err: ErrQueueClosed}, 1)
	if _, err := svc.Upload(context.Background(), "a.pdf", []byte("x"), nil); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	docs, _, err := svc.List(context.Background(), store.ListFilter{Status: models.StatusError})
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected one errored document, got %v %v", docs, err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openStore(t)
	svc := newTestService(s, s, fakeExtractor{pages: twoPages}, fakeEmbedder{})
	ctx := context.Background()

	a, err := svc.Upload(ctx, "a.pdf", []byte("x"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upload(ctx, "b.pdf", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}

	docs, total, err := svc.List(ctx, store.ListFilter{Status: models.StatusReady, Limit: 1})
	if err != nil || total != 2 || len(docs) != 1 {
		t.Fatalf("unexpected listing %v %d %v", docs, total, err)
	}
	if _, _, err := svc.List(ctx, store.ListFilter{Status: "archived"}); err == nil {
		t.Fatal("expected error for unknown status")
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if hits := chunksOf(t, s, a.ID); len(hits) != 0 {
		t.Fatalf("chunks survived delete: %d", len(hits))
	}
	if _, err := svc.Get(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
