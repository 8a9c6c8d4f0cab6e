package models

import "errors"

var (
	// ErrNotFound marks a lookup for an id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAnswer marks an answer that failed citation validation.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrModelMissing marks a chat model absent from the LLM host.
	ErrModelMissing = errors.New("model missing")
)
