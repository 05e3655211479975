// Package apierr defines the structured error returned by every public operation and
// the classifier that turns raw transport outcomes into it.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the category of a structured error.
type Kind string

const (
	KindTimeout    Kind = "Timeout"
	KindRateLimit  Kind = "RateLimited"
	KindNotFound   Kind = "NotFound"
	KindValidation Kind = "ValidationError"
	KindServer     Kind = "ServerError"
	KindUnknown    Kind = "Unknown"
)

// Default remediation per kind.
var suggestions = map[Kind]string{
	KindTimeout:    "Try using 'fast' mode or breaking down your query into smaller parts.",
	KindRateLimit:  "Rate limit exceeded. Wait a moment before retrying.",
	KindNotFound:   "Check the repository name format (owner/repo) and that it is indexed.",
	KindValidation: "Check the request parameters and try again.",
	KindServer:     "The service may be temporarily unavailable. Try again shortly.",
	KindUnknown:    "Try again, or simplify the query.",
}

// DefaultSuggestion returns the standard remediation for k.
func DefaultSuggestion(k Kind) string {
	if s, ok := suggestions[k]; ok {
		return s
	}
	return suggestions[KindUnknown]
}

// Error is the uniform failure shape crossing every component boundary.
type Error struct {
	Kind       Kind
	Message    string
	Retryable  bool
	Suggestion string

	// StatusCode is the HTTP status that produced the error, if any.
	StatusCode int
	// RetryAfter is the server-supplied wait hint for rate-limited responses.
	RetryAfter time.Duration
	// Attempts is the number of attempts made by the retry executor.
	Attempts int
	// Exhausted is set when the retry executor gave up on a transient error.
	Exhausted bool

	cause error
}

// New builds an Error of kind k with the default suggestion.
func New(k Kind, format string, args ...any) *Error {
	return &Error{
		Kind:       k,
		Message:    fmt.Sprintf(format, args...),
		Retryable:  k == KindTimeout || k == KindRateLimit || k == KindServer,
		Suggestion: DefaultSuggestion(k),
	}
}

// Validation is shorthand for a non-retryable validation failure.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s: %s (retries exhausted after %d attempts)", e.Kind, e.Message, e.Attempts)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As. The cause is never serialized.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause returns a copy of e carrying cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// WithSuggestion returns a copy of e with a custom suggestion.
func (e *Error) WithSuggestion(s string) *Error {
	c := *e
	c.Suggestion = s
	return &c
}

// AsTerminal returns a copy of e that callers must not retry.
func (e *Error) AsTerminal() *Error {
	c := *e
	c.Retryable = false
	return &c
}

// Is matches on Kind so callers can write errors.Is(err, apierr.ErrTimeout).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrServer     = &Error{Kind: KindServer}
	ErrUnknown    = &Error{Kind: KindUnknown}
)

type errorJSON struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	Suggestion string `json:"suggestion,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Exhausted  bool   `json:"retries_exhausted,omitempty"`
}

// MarshalJSON emits only the public fields.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(errorJSON{
		Kind:       e.Kind,
		Message:    e.Message,
		Retryable:  e.Retryable,
		Suggestion: e.Suggestion,
		Attempts:   e.Attempts,
		Exhausted:  e.Exhausted,
	})
}

// UnmarshalJSON restores the public fields.
func (e *Error) UnmarshalJSON(data []byte) error {
	var v errorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Error{
		Kind:       v.Kind,
		Message:    v.Message,
		Retryable:  v.Retryable,
		Suggestion: v.Suggestion,
		Attempts:   v.Attempts,
		Exhausted:  v.Exhausted,
	}
	return nil
}

// From returns err as an *Error, classifying it if necessary. nil stays nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Classify(err)
}
