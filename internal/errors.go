package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// statusErr is an error carrying an HTTP status code. Upstream responses with
// codes >= 400 surface as these so the handler can mirror the code.
type statusErr int

func (e statusErr) Error() string {
	return fmt.Sprintf("status %d", int(e))
}

// Status returns the underlying status code.
func (e statusErr) Status() int {
	return int(e)
}

var (
	errNotFound   = statusErr(http.StatusNotFound)
	errBadRequest = statusErr(http.StatusBadRequest)

	// errMalformed marks provider output that parsed but violated schema.
	errMalformed = errors.New("malformed provider response")
)

// ConfigError reports an invalid discovery configuration. It is one of only
// two error kinds Discover surfaces to callers.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

func configErrf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// InvariantError indicates a bug. It is never produced by provider or cache
// failures.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Detail
}

// ErrorKind classifies a per-source failure. Kinds are recorded on the
// source's result and never surfaced as errors from Discover.
type ErrorKind string

const (
	// ErrorKindTimeout means the source didn't complete before the run's
	// deadline.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindUnavailable covers connection, HTTP, and auth failures that
	// persisted through the client's retry budget.
	ErrorKindUnavailable ErrorKind = "provider-unavailable"

	// ErrorKindMalformed means the provider responded but its output violated
	// schema. It doesn't poison the run.
	ErrorKindMalformed ErrorKind = "malformed-response"
)

// classifyErr maps a client error onto its kind.
func classifyErr(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorKindTimeout
	case errors.Is(err, errMalformed):
		return ErrorKindMalformed
	default:
		return ErrorKindUnavailable
	}
}
