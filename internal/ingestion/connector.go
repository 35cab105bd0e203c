package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

// Cursor is an opaque pagination token. The empty cursor starts a fresh search.
type Cursor string

// Page is one page of search results.
type Page struct {
	Candidates []models.CandidateRecord
	NextCursor Cursor
}

// Connector fetches pages of candidates for a search query. Implementations
// report rate limiting with *RateLimitError, credential problems with
// *AuthError, requests the source will never accept with *RequestError and
// anything retryable with *TransientError.
type Connector interface {
	// Name returns the unique identifier for this connector.
	Name() string

	// Authenticate establishes or verifies a session with the source.
	Authenticate(ctx context.Context) error

	// FetchPage returns the page of results for query that follows cursor.
	FetchPage(ctx context.Context, query string, cursor Cursor) (Page, error)
}

// RateLimitError signals that the source throttled the caller.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.Err != nil {
		msg = fmt.Sprintf("rate limited: %v", e.Err)
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", msg, e.RetryAfter)
	}
	return msg
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// TransientError wraps a retryable failure such as a timeout or a malformed
// response.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient transport error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AuthError signals that the source rejected the session or credentials.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError signals that the source refused the request itself, such as a
// time window outside what the endpoint serves. Retrying cannot succeed.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request rejected: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a rate limit signal with an optional server hint.
func NewRateLimitError(err error, retryAfter time.Duration) error {
	return &RateLimitError{Err: err, RetryAfter: retryAfter}
}

// NewTransientError creates a transient transport signal.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// NewAuthError creates an authentication failure signal.
func NewAuthError(err error) error {
	return &AuthError{Err: err}
}

// NewRequestError creates a non-retryable request signal.
func NewRequestError(err error) error {
	return &RequestError{Err: err}
}

// Classify maps a connector error onto the failure taxonomy. Errors that carry
// no signal are treated as transient.
func Classify(err error) models.ErrorKind {
	var rateErr *RateLimitError
	var authErr *AuthError
	var reqErr *RequestError
	switch {
	case errors.As(err, &rateErr):
		return models.ErrorKindRateLimited
	case errors.As(err, &authErr):
		return models.ErrorKindAuthenticationFailure
	case errors.As(err, &reqErr):
		return models.ErrorKindRequestRejected
	case errors.Is(err, context.Canceled):
		return models.ErrorKindOperatorInterrupt
	default:
		return models.ErrorKindTransientTransport
	}
}
