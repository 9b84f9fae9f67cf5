package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type blockingEmbedder struct {
	release chan struct{}
}

func (b *blockingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := b.EmbedOne(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (b *blockingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-b.release:
		return []float32{float32(len(text))}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPoolEmbedsConcurrently(t *testing.T) {
	var calls int32
	svc := NewService(loaderFor(&fakeEmb{dim: 2}, &calls))
	pool := NewPool(svc, 3)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := pool.EmbedQuery(context.Background(), "query")
			if err != nil {
				t.Errorf("embed: %v", err)
				return
			}
			if v[0] != 5 {
				t.Errorf("unexpected vector %v", v)
			}
		}()
	}
	wg.Wait()
}

func TestPoolHonoursContext(t *testing.T) {
	pool := NewPool(&blockingEmbedder{release: make(chan struct{})}, 1)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.EmbedQuery(ctx, "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolClosed(t *testing.T) {
	pool := NewPool(&blockingEmbedder{release: make(chan struct{})}, 1)
	pool.Close()
	if _, err := pool.EmbedQuery(context.Background(), "q"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
