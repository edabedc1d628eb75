package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is spec §7's error taxonomy ("kinds, not types"): transient
// network, provider refusal, rate limit, malformed request, context
// overflow, and the unclassified default.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindRefusal   ErrorKind = "refusal"
	KindRateLimit ErrorKind = "rate_limit"
	KindMalformed ErrorKind = "malformed"
	KindOverflow  ErrorKind = "overflow"
	KindUnknown   ErrorKind = "unknown"
)

// Retryable reports whether retrying the same provider may succeed
// (spec §7: transient network and rate limit are retried; refusal and
// malformed requests fail fast).
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransient, KindRateLimit, KindOverflow:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the error warrants trying the next
// provider in the chain rather than exhausting retries on this one.
func (k ErrorKind) ShouldFailover() bool {
	switch k {
	case KindRefusal, KindRateLimit:
		return true
	default:
		return false
	}
}

// Error is a structured provider failure carrying enough context for
// the fallback chain's retry/failover decisions and for the user-facing
// summary line spec §7 requires ("a single line summarizing the last
// error with an actionable hint").
type Error struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause in an Error, classifying it by message content.
func NewError(providerName, model string, cause error) *Error {
	e := &Error{Provider: providerName, Model: model, Cause: cause, Kind: KindUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Kind = classifyMessage(cause.Error())
	}
	return e
}

// WithStatus attaches an HTTP status code and reclassifies from it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	e.Kind = classifyStatus(status)
	return e
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return KindRefusal
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusBadRequest:
		return KindMalformed
	case status == http.StatusRequestEntityTooLarge:
		return KindOverflow
	case status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

func classifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "timeout"), strings.Contains(m, "deadline exceeded"),
		strings.Contains(m, "connection reset"), strings.Contains(m, "eof"):
		return KindTransient
	case strings.Contains(m, "rate limit"), strings.Contains(m, "too many requests"), strings.Contains(m, "429"):
		return KindRateLimit
	case strings.Contains(m, "unauthorized"), strings.Contains(m, "invalid api key"),
		strings.Contains(m, "authentication"), strings.Contains(m, "401"), strings.Contains(m, "403"), strings.Contains(m, "404"):
		return KindRefusal
	case strings.Contains(m, "context_length_exceeded"), strings.Contains(m, "maximum context length"),
		strings.Contains(m, "too large"), strings.Contains(m, "413"):
		return KindOverflow
	case strings.Contains(m, "invalid"), strings.Contains(m, "bad request"), strings.Contains(m, "400"):
		return KindMalformed
	case strings.Contains(m, "internal server"), strings.Contains(m, "server error"),
		strings.Contains(m, "502"), strings.Contains(m, "503"), strings.Contains(m, "504"), strings.Contains(m, "500"):
		return KindTransient
	default:
		return KindUnknown
	}
}

// ClassifyError extracts the ErrorKind from err, unwrapping an *Error if
// present or classifying the raw message otherwise.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classifyMessage(err.Error())
}
