package models

// Page is the extracted text of a single PDF page.
type Page struct {
	Number int
	Text   string
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	ID         string
	DocumentID string
	SourceFile string
	PageNumber int
	Content    string
	ChunkIndex int
	Embedding  []float32
}

// RetrievedChunk is a chunk returned by similarity search.
type RetrievedChunk struct {
	Chunk
	Similarity float64
}

// Citation is the (file, page) attribution shown to the user.
type Citation struct {
	SourceFile string `json:"source_file"`
	PageNumber int    `json:"page_number"`
}

// Key returns the citation key of the chunk.
func (c Chunk) Key() Citation {
	return Citation{SourceFile: c.SourceFile, PageNumber: c.PageNumber}
}

// ConversationTurn is one role-tagged message of earlier conversation.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the instruction payload handed to the generator.
type Prompt struct {
	System string
	User   string
}
