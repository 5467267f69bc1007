package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable marks failures to reach the embedding service at all.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrMissingEmbedding     = errors.New("embedding missing from response")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
)

// StatusError is a non-2xx answer from an external service.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.Code, e.Body)
}
