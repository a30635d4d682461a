package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed provider call.
type Kind int

const (
	// KindTransport covers network failures, unexpected statuses and
	// undecodable bodies.
	KindTransport Kind = iota
	// KindRateLimited is HTTP 429 from the provider.
	KindRateLimited
	// KindTimeout is a request that exceeded the client timeout.
	KindTimeout
	// KindNotFound is an unknown coin identifier.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

// Retryable reports whether a later manual retry can reasonably succeed.
// Rate limiting is excluded: retrying only deepens the throttle.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindTransport
}

// Sentinels for errors.Is matching against a classified *Error.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("request timeout")
	ErrNotFound    = errors.New("not found")
	ErrTransport   = errors.New("transport failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrTransport
	}
}

// Error is the only error type returned by Client methods.
type Error struct {
	Kind    Kind
	Op      string // markets|search|coin|market_chart
	Status  int    // HTTP status, 0 when no response was received
	Message string // provider-supplied message when available
	Err     error  // underlying cause
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "coingecko " + e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf extracts the classification of err. Errors that did not originate
// from the client are reported as KindTransport.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}

// UserMessage returns the short human-facing text for a classified error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindRateLimited:
		return "Rate limit exceeded. Please try again later."
	case KindTimeout:
		return "Request timeout. Please check your connection."
	case KindNotFound:
		return "Cryptocurrency not found."
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return "Failed to fetch data"
}

// DecodeError reports a provider body that did not match the expected shape.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", e.Field, e.Reason)
}

// classifyTransport maps a failed round trip onto Timeout or Transport.
func classifyTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}
