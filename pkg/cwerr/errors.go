// Package cwerr defines the error taxonomy shared by every stage of the
// proxy pipeline: sanitizer, pruner, request builder, streaming engine,
// credential refresher, and account pool. Each kind carries enough context
// to decide whether an account's health counters should move, without
// forcing callers to parse error strings.
package cwerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries from the error handling design.
type Kind int

const (
	// KindClientFault is a 400-equivalent: the request itself is malformed.
	// Never mutates account health.
	KindClientFault Kind = iota
	// KindAuthExpired means the bearer token needs a refresh.
	KindAuthExpired
	// KindRateLimited means the upstream responded 429.
	KindRateLimited
	// KindTransientTransport covers socket/DNS/5xx failures.
	KindTransientTransport
	// KindFatal covers forbidden/quota/suspended/unauthorized-non-rate.
	KindFatal
	// KindCodecError covers malformed upstream event-stream frames.
	KindCodecError
	// KindInternalInvariantViolation is a bug surfaced as a 500.
	KindInternalInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindClientFault:
		return "client_fault"
	case KindAuthExpired:
		return "auth_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientTransport:
		return "transient_transport"
	case KindFatal:
		return "fatal"
	case KindCodecError:
		return "codec_error"
	case KindInternalInvariantViolation:
		return "internal_invariant_violation"
	default:
		return "unknown"
	}
}

// AnthropicType maps a Kind to the Anthropic-shaped error type string used
// in client-visible `error` events and objects.
func (k Kind) AnthropicType() string {
	switch k {
	case KindRateLimited:
		return "rate_limit_error"
	case KindFatal, KindAuthExpired:
		return "permission_error"
	case KindInternalInvariantViolation, KindTransientTransport, KindCodecError:
		return "api_error"
	default:
		return "api_error"
	}
}

// ProxyError is the single error type every pipeline stage returns. It
// wraps an underlying cause and carries the classification plus whatever
// HTTP status the upstream reported, when known.
type ProxyError struct {
	Kind       Kind
	StatusCode int // 0 when not HTTP-derived
	Message    string
	Cause      error
	// HeuristicMatch records whether substring matching, not a status code,
	// drove the classification, logged so the heuristic path is visible.
	HeuristicMatch bool
}

func (e *ProxyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *ProxyError) Unwrap() error { return e.Cause }

// New builds a ProxyError of the given kind.
func New(kind Kind, statusCode int, message string, cause error) *ProxyError {
	return &ProxyError{Kind: kind, StatusCode: statusCode, Message: message, Cause: cause}
}

// Is reports whether err is a ProxyError of the given kind.
func Is(err error, kind Kind) bool {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// AsProxyError extracts the ProxyError from err, if any.
func AsProxyError(err error) (*ProxyError, bool) {
	var pe *ProxyError
	ok := errors.As(err, &pe)
	return pe, ok
}

var fatalSubstrings = []string{
	"suspended",
	"quota",
	"token is expired",
	"invalid token",
	"unauthorized",
}

// ClassifyHTTP applies the status-driven classification from the error
// handling design: HTTP status first, substring matching over the body
// (classifyHeuristic) only as a last resort for status codes outside the
// mapped ones (400, 401, 402/403, 429, 5xx), e.g. a 404 or 408.
func ClassifyHTTP(statusCode int, body string) *ProxyError {
	switch {
	case statusCode == 400:
		return New(KindClientFault, statusCode, "bad request", nil)
	case statusCode == 401:
		return New(KindAuthExpired, statusCode, "unauthorized", nil)
	case statusCode == 429:
		return New(KindRateLimited, statusCode, "rate limited", nil)
	case statusCode == 402 || statusCode == 403:
		return New(KindFatal, statusCode, "forbidden", nil)
	case statusCode >= 500 && statusCode < 600:
		return New(KindTransientTransport, statusCode, "upstream server error", nil)
	}
	return classifyHeuristic(statusCode, body)
}

// classifyHeuristic is the substring-matching last resort flagged in the
// design notes as fragile; callers should log HeuristicMatch when true.
func classifyHeuristic(statusCode int, body string) *ProxyError {
	lower := toLower(body)
	for _, s := range fatalSubstrings {
		if containsFold(lower, s) {
			return &ProxyError{Kind: KindFatal, StatusCode: statusCode, Message: body, HeuristicMatch: true}
		}
	}
	return &ProxyError{Kind: KindTransientTransport, StatusCode: statusCode, Message: body, HeuristicMatch: true}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// IsSocketClassError reports whether err looks like a transport-level
// failure (connection reset, timeout, DNS) rather than an HTTP response.
func IsSocketClassError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"connection reset", "i/o timeout", "no such host", "EOF", "connection refused"} {
		if containsFold(toLower(msg), toLower(s)) {
			return true
		}
	}
	return false
}
