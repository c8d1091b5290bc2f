package provider

import "fmt"

// CompletionError wraps any quota/network/model failure from a completion
// call. Pipeline stages surface it through their own stage errors.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return fmt.Sprintf("completion: %v", e.Err) }
func (e *CompletionError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failure from an embedding call. Ingestion treats it
// as fatal for the document being ingested; retrieval treats it as a degraded
// source.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding: %v", e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }
