package models

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	KindEmbeddingUnavailable FailureKind = "embedding_unavailable"
	KindRetrievalFailed      FailureKind = "retrieval_failed"
	KindGenerationFailure    FailureKind = "generation_failure"
	KindIngestionFailure     FailureKind = "ingestion_failure"
)

// Failure is the error type returned across the pipeline. Kind tells callers
// which stage failed; Message is safe to show to an end user.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Message == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

func ModelError(msg string, err error) *Failure {
	return &Failure{Kind: KindEmbeddingUnavailable, Message: msg, Err: err}
}

func RetrievalError(msg string, err error) *Failure {
	return &Failure{Kind: KindRetrievalFailed, Message: msg, Err: err}
}

func GenerationError(msg string, err error) *Failure {
	return &Failure{Kind: KindGenerationFailure, Message: msg, Err: err}
}

func IngestionError(msg string, err error) *Failure {
	return &Failure{Kind: KindIngestionFailure, Message: msg, Err: err}
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
