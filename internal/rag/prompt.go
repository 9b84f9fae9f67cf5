package rag

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"pdf-rag/internal/models"
)

const defaultHistoryTurns = 3

// BuildPrompt assembles the system directive and the user message from the
// retrieved chunks, the most recent history turns and the question.
func BuildPrompt(query string, chunks []models.RetrievedChunk, history []models.ConversationTurn, turns int) models.Prompt {
	return models.Prompt{
		System: models.SystemPrompt,
		User: fmt.Sprintf(models.UserPromptTemplate,
			FormatContext(chunks),
			FormatHistory(history, turns),
			query,
		),
	}
}

// FormatContext lists each chunk with its attribution, in retrieval order.
func FormatContext(chunks []models.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("%s\nSource: %s, Page %d\n%s\n%s",
			models.ContextSeparator, c.SourceFile, c.PageNumber, c.Content, models.ContextSeparator))
	}
	return strings.Join(parts, "\n\n")
}

// FormatHistory keeps the last turns entries, oldest first.
func FormatHistory(history []models.ConversationTurn, turns int) string {
	if len(history) == 0 {
		return models.NoHistoryPlaceholder
	}
	if turns <= 0 {
		turns = defaultHistoryTurns
	}
	if len(history) > turns {
		history = history[len(history)-turns:]
	}
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(turn.Role), turn.Content))
	}
	return strings.Join(lines, "\n")
}

func roleLabel(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "user"
	}
	r, size := utf8.DecodeRuneInString(role)
	return string(unicode.ToUpper(r)) + role[size:]
}
