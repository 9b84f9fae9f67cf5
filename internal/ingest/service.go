package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/store"
)

var (
	ErrInvalidFileType = errors.New("only PDF files are supported")
	ErrFileTooLarge    = errors.New("file is too large")
	ErrUnreadablePDF   = errors.New("could not read PDF")
)

// Submitter accepts ingestion jobs.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// Service is the document facing side of ingestion: upload, list, delete.
type Service struct {
	registry  store.DocumentRegistry
	index     store.ChunkIndex
	extractor parser.Extractor
	queue     Submitter
	maxBytes  int64
}

func NewService(registry store.DocumentRegistry, index store.ChunkIndex, extractor parser.Extractor, queue Submitter, maxUploadMB int) *Service {
	return &Service{
		registry:  registry,
		index:     index,
		extractor: extractor,
		queue:     queue,
		maxBytes:  int64(maxUploadMB) << 20,
	}
}

// Upload validates the file, records it as processing and queues it. It
// returns as soon as the job is queued; onDone reports the outcome.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, onDone func(Result)) (*models.Document, error) {
	if !parser.IsPDF(filename) {
		return nil, ErrInvalidFileType
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d MB", ErrFileTooLarge, len(data), s.maxBytes>>20)
	}
	pageCount, err := s.extractor.PageCount(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	doc := &models.Document{
		Filename:  filename,
		FileSize:  int64(len(data)),
		PageCount: pageCount,
		Status:    models.StatusProcessing,
	}
	if err := s.registry.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	job := Job{DocumentID: doc.ID, Filename: filename, Data: data, OnDone: onDone}
	if err := s.queue.Submit(ctx, job); err != nil {
		if uerr := s.registry.UpdateDocumentStatus(context.WithoutCancel(ctx), doc.ID, models.StatusError, 0); uerr != nil {
			log.Error().Err(uerr).Str("document_id", doc.ID).Msg("Failed to mark document as error")
		}
		return nil, fmt.Errorf("failed to queue document: %w", err)
	}
	log.Info().Str("document_id", doc.ID).Str("file", filename).Int("pages", pageCount).Msg("Document queued")
	return doc, nil
}

func (s *Service) List(ctx context.Context, f store.ListFilter) ([]models.Document, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("unknown status %q", f.Status)
	}
	return s.registry.ListDocuments(ctx, f.Normalize())
}

func (s *Service) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.registry.GetDocument(ctx, id)
}

// Delete removes the document and its chunks. store.ErrNotFound is returned
// for unknown ids.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.registry.GetDocument(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteChunks(ctx, id); err != nil {
		return err
	}
	if err := s.registry.DeleteDocument(ctx, id); err != nil {
		return err
	}
	log.Info().Str("document_id", id).Msg("Document deleted")
	return nil
}
