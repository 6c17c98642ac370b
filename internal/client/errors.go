package client

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the upstream has no data for the request
	ErrNotFound = errors.New("upstream: no data")
	// ErrUnavailable means the upstream kept failing after all retries
	ErrUnavailable = errors.New("upstream: unavailable")
)

// ErrorKind classifies upstream failures
type ErrorKind int

const (
	// KindTransient covers 5xx, 429, timeouts and network errors
	KindTransient ErrorKind = iota
	// KindMissing covers 4xx and empty result sets
	KindMissing
	// KindSchema covers bodies that do not have the expected shape
	KindSchema
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMissing:
		return "missing"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// UpstreamError is returned by every client operation that does not succeed
type UpstreamError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s upstream error", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel that corresponds to the kind
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindMissing
	case ErrUnavailable:
		return e.Kind == KindTransient
	}
	return false
}

func missing(endpoint string, status int, err error) error {
	return &UpstreamError{Kind: KindMissing, Endpoint: endpoint, StatusCode: status, Err: err}
}

func transient(endpoint string, status int, err error) error {
	return &UpstreamError{Kind: KindTransient, Endpoint: endpoint, StatusCode: status, Err: err}
}

func schema(endpoint string, err error) error {
	return &UpstreamError{Kind: KindSchema, Endpoint: endpoint, Err: err}
}

// Outcome is the typed result callers branch on in fallback chains
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "fail"
	}
}

// OutcomeOf maps an operation error onto Ok | NotFound | Fail.
// Cancellation and deadlines are failures.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeFail
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeFail
	}
}
