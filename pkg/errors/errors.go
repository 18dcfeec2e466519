// Package errors defines the sentinel errors shared by the index, the query
// engine and the service surfaces, plus AppError for attaching an HTTP status
// and a caller-facing message to a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnknownTerm     = errors.New("unknown term")
	ErrMalformedQuery  = errors.New("malformed query")
	ErrIngestionIO     = errors.New("document could not be read")
	ErrIndexSealed     = errors.New("index is finalized")
	ErrPositionOrder   = errors.New("position not increasing")
	ErrUnknownDocument = errors.New("unknown document")
	ErrDocumentClosed  = errors.New("document already closed")
	ErrNoCorpus        = errors.New("no documents found")
	ErrIndexNotReady   = errors.New("index not ready")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Malformed is a shorthand for a 400 ErrMalformedQuery.
func Malformed(format string, args ...any) *AppError {
	return Newf(ErrMalformedQuery, http.StatusBadRequest, format, args...)
}

// Message returns the caller-facing part of err: the AppError message when
// there is one, err.Error() otherwise.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrUnknownTerm), errors.Is(err, ErrUnknownDocument):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexSealed), errors.Is(err, ErrDocumentClosed), errors.Is(err, ErrPositionOrder):
		return http.StatusConflict
	case errors.Is(err, ErrIndexNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
