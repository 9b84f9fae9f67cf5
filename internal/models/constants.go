package models

const (
	NoResultsMessage = "I couldn't find any relevant information in the uploaded documents. " +
		"Please make sure you have uploaded PDFs related to your question."
	NoHistoryPlaceholder = "No previous conversation."
	ContextSeparator     = "---"
)

var (
	SystemPrompt = `You are a helpful research assistant. Answer the user's question using ONLY the provided context passages. Follow these rules strictly:

1. Base your answer exclusively on the context. Do not use prior knowledge.
2. If the context does not contain enough information, say: "I couldn't find sufficient information in the uploaded documents."
3. Cite every claim using [Source: filename, Page N] format.
4. If multiple sources support a claim, cite all of them.
5. Structure long answers with bullet points or numbered lists.
6. Be concise but thorough.`

	UserPromptTemplate = `## Context
%s

## Conversation History
%s

## User Question
%s

## Instructions
Answer the question based on the context above. Cite sources as [Source: filename, Page N].`
)
