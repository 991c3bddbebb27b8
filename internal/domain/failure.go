package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why an extraction step did not produce media
type FailureKind string

const (
	// FailureNetwork is transient and retry-eligible at the caller's discretion
	FailureNetwork FailureKind = "network_error"
	// FailureBlocked means the platform rejected or challenged the request
	FailureBlocked FailureKind = "blocked"
	// FailureParse means the expected structure was absent (upstream format drift)
	FailureParse FailureKind = "parse_error"
	// FailureTimeout means a bounded operation exceeded its budget
	FailureTimeout FailureKind = "timeout"
	// FailureNotReady means a shared resource is unavailable; the strategy is skipped
	FailureNotReady FailureKind = "not_ready"
)

// Failure is a typed extraction failure
type Failure struct {
	Strategy string      `json:"strategy"`
	Kind     FailureKind `json:"kind"`
	Detail   string      `json:"detail"`

	cause error
}

// NewFailure creates a failure not yet attributed to a strategy
func NewFailure(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Strategy == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", f.Strategy, f.Kind, f.Detail)
}

// WithStrategy returns a copy attributed to the named strategy
func (f *Failure) WithStrategy(name string) *Failure {
	c := *f
	c.Strategy = name
	return &c
}

// Wrap returns a copy carrying cause, visible to errors.Is and errors.As
func (f *Failure) Wrap(cause error) *Failure {
	c := *f
	c.cause = cause
	return &c
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// AsFailure extracts a *Failure from err, classifying unknown errors with fallback
func AsFailure(err error, fallback FailureKind) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: fallback, Detail: err.Error()}
}

// IsNotReady reports whether err is a NotReady failure
func IsNotReady(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == FailureNotReady
}

// ChainError is returned when extraction produced no media.
// Failures are kept in attempt order; a canonicalization failure yields exactly one entry.
type ChainError struct {
	Failures []*Failure `json:"failures"`
}

func (e *ChainError) Error() string {
	if len(e.Failures) == 0 {
		return "no extraction strategy available"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

// Kinds returns the failure kinds in attempt order
func (e *ChainError) Kinds() []FailureKind {
	kinds := make([]FailureKind, 0, len(e.Failures))
	for _, f := range e.Failures {
		kinds = append(kinds, f.Kind)
	}
	return kinds
}

// UserMessage is the only text about a failed extraction shown to end users
const UserMessage = "Sorry, I could not retrieve this content."
