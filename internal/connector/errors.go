package connector

import (
	"errors"
	"fmt"
)

// Kind classifies a connector failure for the engine's retry policy.
type Kind int

const (
	// KindTransient covers network failures, 5xx responses, and malformed
	// payloads. The engine fails the window immediately; any retrying beyond
	// that is the connector's own business.
	KindTransient Kind = iota

	// KindRateLimited means the API asked us to slow down. The engine retries
	// the window once after its pacing delay; a second signal fails the window.
	KindRateLimited

	// KindAuth covers credential rejection. The window fails like any other,
	// but the error is surfaced prominently since it likely affects every
	// subsequent window of the source.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth_error"
	default:
		return "transient_error"
	}
}

// Error is a classified connector failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited wraps err as a rate-limit signal.
func RateLimited(err error) error { return &Error{Kind: KindRateLimited, Err: err} }

// Transient wraps err as a transient failure.
func Transient(err error) error { return &Error{Kind: KindTransient, Err: err} }

// AuthFailed wraps err as an authentication failure.
func AuthFailed(err error) error { return &Error{Kind: KindAuth, Err: err} }

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool { return kindOf(err) == KindRateLimited }

// IsAuth reports whether err carries an auth failure.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

func kindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// ClassOf returns the taxonomy label for err, treating unclassified errors as
// transient. Used for ledger rows and window error lists.
func ClassOf(err error) string { return kindOf(err).String() }
