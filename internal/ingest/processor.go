package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/store"
)

var (
	errNoText   = errors.New("no text could be extracted from the PDF")
	errNoChunks = errors.New("document produced no chunks")
)

// Processor indexes one document: extract, chunk, embed, store.
type Processor struct {
	registry  store.DocumentRegistry
	index     store.ChunkIndex
	extractor parser.Extractor
	chunker   *parser.Chunker
	embedder  embedding.TextEmbedder
}

func NewProcessor(registry store.DocumentRegistry, index store.ChunkIndex, extractor parser.Extractor, chunker *parser.Chunker, embedder embedding.TextEmbedder) *Processor {
	return &Processor{
		registry:  registry,
		index:     index,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
	}
}

// Process is a Handler. The document ends up ready with its chunk count, or
// in error with none of its chunks left in the index.
func (p *Processor) Process(ctx context.Context, job Job) Result {
	t0 := time.Now()
	count, err := p.run(ctx, job)
	if err != nil {
		return p.fail(ctx, job, err)
	}
	log.Info().
		Str("document_id", job.DocumentID).
		Str("file", job.Filename).
		Int("chunks", count).
		Dur("took", time.Since(t0)).
		Msg("Document ready")
	return Result{DocumentID: job.DocumentID, Status: models.StatusReady, ChunkCount: count}
}

func (p *Processor) run(ctx context.Context, job Job) (int, error) {
	pages, numPages, err := p.extractor.ExtractPages(job.Data)
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, errNoText
	}
	log.Debug().Str("document_id", job.DocumentID).Int("pages", numPages).Int("text_pages", len(pages)).Msg("Extracted text")

	chunks, err := p.chunker.ChunkPages(job.DocumentID, job.Filename, pages)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, errNoChunks
	}

	if err := embedding.EmbedChunks(ctx, p.embedder, chunks); err != nil {
		return 0, err
	}
	if err := p.index.InsertChunks(ctx, chunks); err != nil {
		return 0, err
	}
	if err := p.registry.UpdateDocumentStatus(ctx, job.DocumentID, models.StatusReady, len(chunks)); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (p *Processor) fail(ctx context.Context, job Job, cause error) Result {
	err := models.IngestionError(fmt.Sprintf("failed to process %s", job.Filename), cause)
	log.Error().Err(err).Str("document_id", job.DocumentID).Msg("Ingestion failed")

	// the job context may be the reason we failed
	cleanup := context.WithoutCancel(ctx)
	if derr := p.index.DeleteChunks(cleanup, job.DocumentID); derr != nil {
		log.Error().Err(derr).Str("document_id", job.DocumentID).Msg("Failed to remove partial chunks")
	}
	if uerr := p.registry.UpdateDocumentStatus(cleanup, job.DocumentID, models.StatusError, 0); uerr != nil {
		log.Error().Err(uerr).Str("document_id", job.DocumentID).Msg("Failed to mark document as error")
	}
	return Result{DocumentID: job.DocumentID, Status: models.StatusError, Err: err}
}
