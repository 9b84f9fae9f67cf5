package parser

import (
	"fmt"
	"strings"

	"pdf-rag/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 512 // characters
	defaultChunkOverlap = 100 // characters
)

var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits page text into overlapping chunks that never cross a page.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = min(defaultChunkOverlap, chunkSize/2)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		),
	}
}

// ChunkPages chunks every page in order. ChunkIndex runs from zero across
// the whole document so it stays unique per document.
func (c *Chunker) ChunkPages(documentID, sourceFile string, pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		parts, err := c.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split page %d: %w", page.Number, err)
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				DocumentID: documentID,
				SourceFile: sourceFile,
				PageNumber: page.Number,
				Content:    part,
				ChunkIndex: len(chunks),
			})
		}
	}
	return chunks, nil
}
