package util

import "errors"

// Adapter-origin failure classes. Call sites wrap the underlying cause with
// one of these via %w so the retry policy can match on errors.Is.
var (
	ErrNotFound          = errors.New("resource not found upstream")
	ErrRateLimited       = errors.New("rate limited by upstream")
	ErrTransient         = errors.New("transient upstream error")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// Orchestration-origin failures.
var ErrJobAlreadyRunning = errors.New("a job is already running")

type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindTransient   Kind = "transient"
	KindMalformed   Kind = "malformed_response"
	KindUnknown     Kind = "unknown"
)

// Classify maps a wrapped adapter error to its failure class. Errors that
// carry no class (storage faults, programming errors) come back KindUnknown
// and are treated as terminal for the current item.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	default:
		return KindUnknown
	}
}
