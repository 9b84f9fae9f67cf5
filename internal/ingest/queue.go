package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

var ErrQueueClosed = errors.New("ingestion queue is closed")

// Job is one uploaded PDF waiting to be indexed.
type Job struct {
	DocumentID string
	Filename   string
	Data       []byte
	// OnDone, when set, is called from the worker once the job finishes.
	OnDone func(Result)
}

type Result struct {
	DocumentID string
	Status     models.DocumentStatus
	ChunkCount int
	Err        error
}

// Handler processes a single job.
type Handler func(ctx context.Context, job Job) Result

// Queue runs jobs on a fixed number of workers with a bounded backlog.
type Queue struct {
	ctx    context.Context
	jobs   chan Job
	handle Handler

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines. Jobs run with ctx, so cancelling it
// aborts in-flight work.
func NewQueue(ctx context.Context, handle Handler, workers, size int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	q := &Queue{
		ctx:    ctx,
		jobs:   make(chan Job, size),
		handle: handle,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		log.Debug().Int("worker", id).Str("document_id", job.DocumentID).Msg("Processing job")
		res := q.handle(q.ctx, job)
		if job.OnDone != nil {
			job.OnDone(res)
		}
	}
}

// Submit enqueues job, blocking while the backlog is full until a slot
// frees up or ctx ends.
func (q *Queue) Submit(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}
