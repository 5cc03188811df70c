package smsspam

import (
	"errors"
	"fmt"
)

// ErrEmptyInput returned when text to classify is empty or whitespace-only
var ErrEmptyInput = errors.New("no input provided")

// ErrNotFitted returned when vectorizer or classifier used before fit
var ErrNotFitted = errors.New("model is not fitted")

// DatasetFormatError describes malformed dataset row
type DatasetFormatError struct {
	Line   int    // 1-based line number in the source, 0 if unknown
	Reason string // what is wrong with the row
}

func (e *DatasetFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed dataset row at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed dataset: %s", e.Reason)
}

// ArtifactLoadError returned when model artifact is missing or corrupt
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("can't load model artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }
