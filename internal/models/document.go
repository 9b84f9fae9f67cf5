package models

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}

// Document is an uploaded PDF and its processing state.
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	FileSize   int64          `json:"file_size"`
	PageCount  int            `json:"page_count"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	CreatedAt  time.Time      `json:"created_at"`
}
