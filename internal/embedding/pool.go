package embedding

import (
	"context"
	"errors"
	"sync"
)

var ErrPoolClosed = errors.New("embedding pool closed")

// Pool runs query embeddings on a fixed set of worker goroutines so request
// handlers never call into the model directly.
type Pool struct {
	embedder TextEmbedder
	jobs     chan poolJob
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type poolJob struct {
	ctx    context.Context
	text   string
	result chan poolResult
}

type poolResult struct {
	vector []float32
	err    error
}

func NewPool(embedder TextEmbedder, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		embedder: embedder,
		jobs:     make(chan poolJob),
		quit:     make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			if err := job.ctx.Err(); err != nil {
				job.result <- poolResult{err: err}
				continue
			}
			v, err := p.embedder.EmbedOne(job.ctx, job.text)
			job.result <- poolResult{vector: v, err: err}
		}
	}
}

// EmbedQuery waits for a free worker and returns the query vector.
func (p *Pool) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	job := poolJob{ctx: ctx, text: text, result: make(chan poolResult, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolClosed
	}
	select {
	case res := <-job.result:
		return res.vector, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers after their current job.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}
