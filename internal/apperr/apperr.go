// Package apperr defines the error taxonomy shared across WhereSpace's
// components (§7 of the spec). Components return these typed values;
// the HTTP facade is the single place that maps them to status codes.
package apperr

import "fmt"

// Kind identifies which row of the §7 taxonomy table an error belongs to.
type Kind string

const (
	KindExtraction      Kind = "ExtractionError"
	KindEmbedding       Kind = "EmbeddingError"
	KindStorage         Kind = "StorageError"
	KindSchemaMismatch  Kind = "SchemaMismatchError"
	KindModelNotFound   Kind = "ModelNotFoundError"
	KindValidation      Kind = "ValidationError"
	KindCancelled       Kind = "CancelledError"
	KindInternal        Kind = "InternalError"
)

// Error is a typed error carrying its taxonomy kind plus an optional detail
// payload the HTTP facade can surface to clients.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func new(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Storage(message string, err error) *Error        { return new(KindStorage, message, err) }
func SchemaMismatch(message string, err error) *Error  { return new(KindSchemaMismatch, message, err) }
func Embedding(message string, err error) *Error       { return new(KindEmbedding, message, err) }
func Extraction(message string, err error) *Error      { return new(KindExtraction, message, err) }
func Validation(message string) *Error                 { return new(KindValidation, message, nil) }
func Internal(message string, err error) *Error        { return new(KindInternal, message, err) }
func Cancelled(message string, err error) *Error       { return new(KindCancelled, message, err) }

// ModelNotFound is raised by C10/C11 when a requested model tag is not
// present in the catalog. Details carries the list of available models so
// the HTTP facade can suggest a corrective action (§7).
func ModelNotFound(message string, available []string) *Error {
	return &Error{
		Kind:    KindModelNotFound,
		Message: message,
		Details: map[string]any{"available_models": available},
	}
}
