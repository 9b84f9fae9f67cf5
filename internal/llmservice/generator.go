package llmservice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/models"
)

// Generator streams answers from a chat model.
type Generator struct {
	model    llms.Model
	provider string
	name     string
	timeout  time.Duration
}

func NewGenerator(model llms.Model, provider, name string, timeout time.Duration) *Generator {
	return &Generator{model: model, provider: provider, name: name, timeout: timeout}
}

// Stream yields answer fragments as the model produces them. A failure is
// yielded once as a *models.Failure and ends the sequence. Breaking out of
// the loop cancels the underlying model call.
func (g *Generator) Stream(ctx context.Context, prompt models.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var (
			runCtx context.Context
			cancel context.CancelFunc
		)
		if g.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		} else {
			runCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		tokens := make(chan string)
		result := make(chan genResult, 1)
		go func() {
			defer close(tokens)
			res, err := GenerateContent(runCtx, g.model, messagesFor(prompt.System, prompt.User),
				llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
					if len(chunk) == 0 {
						return nil
					}
					if err := runCtx.Err(); err != nil {
						return err
					}
					select {
					case tokens <- string(chunk):
						return nil
					case <-runCtx.Done():
						return runCtx.Err()
					}
				}),
			)
			result <- genResult{res: res, err: err}
		}()

		streamed := false
		for tok := range tokens {
			streamed = true
			if !yield(tok, nil) {
				cancel()
				for range tokens {
				}
				return
			}
		}

		r := <-result
		if r.err != nil {
			log.Error().Err(r.err).Str("model", g.name).Msg("Generation failed")
			yield("", g.failure(r.err))
			return
		}
		// providers without streaming support only return the final message
		if !streamed && r.res != nil && r.res.Choices[0].Content != "" {
			yield(r.res.Choices[0].Content, nil)
		}
	}
}

type genResult struct {
	res *llms.ContentResponse
	err error
}

func (g *Generator) failure(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return models.GenerationError("generation cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.GenerationError(fmt.Sprintf("generation timed out after %s", g.timeout), err)
	}
	switch g.provider {
	case "ollama", "":
		return models.GenerationError(fmt.Sprintf(
			"Ollama error. Make sure Ollama is running ('ollama serve') and the model '%s' is pulled ('ollama pull %s')",
			g.name, g.name), err)
	default:
		return models.GenerationError(fmt.Sprintf(
			"model '%s' failed. Check the llm base_url, key and model name", g.name), err)
	}
}
