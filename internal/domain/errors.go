package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error

	kind   *DomainError
	parent *DomainError
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of e or one of its parent kinds.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	k := e
	if e.kind != nil {
		k = e.kind
	}
	for ; k != nil; k = k.parent {
		if k == t {
			return true
		}
	}
	return false
}

// Kind returns the sentinel this error was built from.
func (e *DomainError) Kind() *DomainError {
	if e.kind != nil {
		return e.kind
	}
	return e
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func newSubKind(parent *DomainError, code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, parent: parent}
}

// Wrap attaches cause to kind. The result matches kind (and its parents) with errors.Is.
func Wrap(kind *DomainError, cause error) *DomainError {
	return &DomainError{
		Code:    kind.Code,
		Message: kind.Message,
		Err:     cause,
		kind:    kind,
	}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(kind *DomainError, format string, args ...any) *DomainError {
	return Wrap(kind, fmt.Errorf(format, args...))
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeSkipped       = "SKIPPED"
)

// Per-document errors. Ingestion records these and moves on.
var (
	ErrExtraction      = NewDomainError(ErrCodeInternalError, "text extraction failed")
	ErrEmptyText       = NewDomainError(ErrCodeSkipped, "empty text")
	ErrUnsupportedType = NewDomainError(ErrCodeSkipped, "unsupported document type")
)

// Embedding errors
var (
	ErrEmbedding            = NewDomainError(ErrCodeUpstream, "embedding failed")
	ErrEmbeddingUnavailable = newSubKind(ErrEmbedding, ErrCodeUpstream, "embedding model unavailable")
	ErrInputTooLong         = newSubKind(ErrEmbedding, ErrCodeValidation, "input exceeds embedding model token limit")
)

// Vector index errors
var (
	ErrIndexUnavailable   = NewDomainError(ErrCodeUnavailable, "vector index unavailable")
	ErrSchemaMismatch     = NewDomainError(ErrCodeConflict, "collection schema mismatch")
	ErrCollectionNotFound = NewDomainError(ErrCodeNotFound, "collection not found")
)

// Query and startup errors
var (
	ErrInvalidQuery  = NewDomainError(ErrCodeValidation, "query must not be empty")
	ErrGeneration    = NewDomainError(ErrCodeUpstream, "answer generation failed")
	ErrInvalidConfig = NewDomainError(ErrCodeValidation, "invalid configuration")
	ErrFolderDenied  = NewDomainError(ErrCodeValidation, "folder is outside the data directory")
)
