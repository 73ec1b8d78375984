package vectorsync

import (
	"errors"
	"fmt"
	"os"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrMissingConfig  = errors.New("missing configuration")
	ErrNotImplemented = errors.New("not implemented")
)

// MissingFieldError reports a combined-index entry without a required field.
// It fails the whole work-item build rather than skipping the entry.
type MissingFieldError struct {
	Field    string
	Document string
}

func (e *MissingFieldError) Error() string {
	if e.Document != "" {
		return fmt.Sprintf("combined index entry %q missing %q", e.Document, e.Field)
	}
	return fmt.Sprintf("combined index entry missing %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrInvalidInput
}

// SourceNotFoundError reports a combined-index entry whose JSON payload is
// absent from the resolved storage directory.
type SourceNotFoundError struct {
	ExternalID string
	Path       string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source JSON not found for %s at %s", e.ExternalID, e.Path)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
