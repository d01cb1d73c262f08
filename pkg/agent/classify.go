package agent

import "strings"

// ErrorClass buckets a failure for retry and messaging decisions.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassAuth      ErrorClass = "auth"
	ClassNetwork   ErrorClass = "network"
	ClassPermanent ErrorClass = "permanent"
)

// Keyword sets are matched case-insensitively against the error message.
// Order matters: transient first, then auth, then network. Anything
// unrecognized is permanent, so only affirmatively retryable errors retry.
var (
	transientKeywords = []string{
		"429",
		"rate limit",
		"rate_limit",
		"overloaded",
		"500",
		"502",
		"503",
		"504",
		"internal server error",
		"service unavailable",
		"timeout",
		"timed out",
		"etimedout",
		"temporarily",
		"try again",
	}

	authKeywords = []string{
		"401",
		"403",
		"unauthorized",
		"forbidden",
		"invalid api key",
		"invalid x-api-key",
		"authentication",
		"expired token",
		"permission denied",
	}

	networkKeywords = []string{
		"econnrefused",
		"econnreset",
		"enotfound",
		"enetunreach",
		"connection refused",
		"connection reset",
		"no such host",
		"broken pipe",
		"network is unreachable",
		"dns",
	}
)

// Classify maps an error to its class by case-insensitive substring matching
// over the message text. It is pure and total: the same message always yields
// the same class, nil and unmatched errors classify as permanent.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}

	msg := strings.ToLower(err.Error())

	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return ClassTransient
		}
	}
	for _, kw := range authKeywords {
		if strings.Contains(msg, kw) {
			return ClassAuth
		}
	}
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return ClassNetwork
		}
	}

	return ClassPermanent
}

// ClassifiedError tags an error with its class so callers can present a
// specific message without re-classifying.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return string(e.Class) + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// WrapClassified classifies err and wraps it. A nil err returns nil.
func WrapClassified(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: Classify(err), Err: err}
}
