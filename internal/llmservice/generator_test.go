package llmservice

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/models"
)

// mockChatStream replays tokens through the streaming callback.
type mockChatStream struct {
	tokens    []string
	failAfter int // fail once this many tokens were sent; <0 never
	noStream  bool
	seen      []llms.MessageContent
	emitted   int32
	blockLast bool
}

func (m *mockChatStream) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.seen = messages
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	full := strings.Join(m.tokens, "")
	if m.noStream || opts.StreamingFunc == nil {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full}}}, nil
	}
	for i, tok := range m.tokens {
		if m.failAfter >= 0 && i == m.failAfter {
			return nil, errors.New("connection reset by peer")
		}
		if err := opts.StreamingFunc(ctx, []byte(tok)); err != nil {
			return nil, err
		}
		atomic.AddInt32(&m.emitted, 1)
	}
	if m.blockLast {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full}}}, nil
}

func (m *mockChatStream) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func collect(t *testing.T, g *Generator, ctx context.Context) ([]string, error) {
	t.Helper()
	var out []string
	for tok, err := range g.Stream(ctx, models.Prompt{System: "sys", User: "question"}) {
		if err != nil {
			return out, err
		}
		out = append(out, tok)
	}
	return out, nil
}

func TestStreamYieldsTokensInOrder(t *testing.T) {
	m := &mockChatStream{tokens: []string{"Hello", " ", "world"}, failAfter: -1}
	g := NewGenerator(m, "ollama", "llama3.2:3b", 0)

	toks, err := collect(t, g, context.Background())
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(toks, "") != "Hello world" || len(toks) != 3 {
		t.Fatalf("unexpected tokens %q", toks)
	}
	if len(m.seen) != 2 || m.seen[0].Role != llms.ChatMessageTypeSystem || m.seen[1].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("unexpected messages %+v", m.seen)
	}
}

func TestStreamFailureMidway(t *testing.T) {
	m := &mockChatStream{tokens: []string{"a", "b", "c"}, failAfter: 2}
	g := NewGenerator(m, "ollama", "llama3.2:3b", 0)

	toks, err := collect(t, g, context.Background())
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens before failure, got %q", toks)
	}
	if !models.IsKind(err, models.KindGenerationFailure) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "ollama pull llama3.2:3b") {
		t.Fatalf("expected actionable message, got %q", err.Error())
	}
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	m := &mockChatStream{tokens: []string{"1", "2", "3", "4", "5"}, failAfter: -1}
	g := NewGenerator(m, "openai", "gpt", 0)

	n := 0
	for _, err := range g.Stream(context.Background(), models.Prompt{}) {
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if got := atomic.LoadInt32(&m.emitted); got > 3 {
		t.Fatalf("model kept streaming after consumer stopped: %d tokens", got)
	}
}

func TestStreamTimeout(t *testing.T) {
	m := &mockChatStream{tokens: []string{"x"}, failAfter: -1, blockLast: true}
	g := NewGenerator(m, "ollama", "llama3.2:3b", 20*time.Millisecond)

	toks, err := collect(t, g, context.Background())
	if len(toks) != 1 {
		t.Fatalf("expected the token before the timeout, got %q", toks)
	}
	if !models.IsKind(err, models.KindGenerationFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}

func TestStreamWithoutStreamingSupport(t *testing.T) {
	m := &mockChatStream{tokens: []string{"whole ", "answer"}, failAfter: -1, noStream: true}
	g := NewGenerator(m, "openai", "gpt", 0)

	toks, err := collect(t, g, context.Background())
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(toks) != 1 || toks[0] != "whole answer" {
		t.Fatalf("unexpected tokens %q", toks)
	}
}
