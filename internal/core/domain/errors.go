package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAccessDenied     = errors.New("access denied")
	ErrRunInProgress    = errors.New("run already in progress")
	ErrExtraction       = errors.New("extraction failure")
	ErrClassification   = errors.New("classification failure")
	ErrStorage          = errors.New("storage failure")
	ErrPersistence      = errors.New("persistence failure")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
