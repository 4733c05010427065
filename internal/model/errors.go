package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies lookup failures
type ErrorKind string

const (
	KindInvalidDomain    ErrorKind = "InvalidDomain"
	KindZoneNotFound     ErrorKind = "ZoneNotFound"
	KindUpstream         ErrorKind = "UpstreamError"
	KindLookupFailed     ErrorKind = "LookupFailed"
	KindMalformedCommand ErrorKind = "MalformedCommand"
)

// LookupError is the error type shared by every lookup component
type LookupError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *LookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}

// NewInvalidDomainError reports a host that does not resolve
func NewInvalidDomainError(host string, cause error) *LookupError {
	return &LookupError{
		Kind:    KindInvalidDomain,
		Message: fmt.Sprintf("domain %q does not resolve", host),
		Cause:   cause,
		Context: map[string]interface{}{"host": host},
	}
}

// NewZoneNotFoundError reports a domain no provider zone covers
func NewZoneNotFoundError(domain string) *LookupError {
	return &LookupError{
		Kind:    KindZoneNotFound,
		Message: fmt.Sprintf("Zone for domain '%s' not found.", domain),
		Context: map[string]interface{}{"domain": domain},
	}
}

// NewUpstreamError reports a non-success response from the provider API
func NewUpstreamError(endpoint string, status int, detail string, cause error) *LookupError {
	msg := fmt.Sprintf("%s returned status %d", endpoint, status)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return &LookupError{
		Kind:    KindUpstream,
		Message: msg,
		Cause:   cause,
		Context: map[string]interface{}{"endpoint": endpoint, "status": status, "detail": detail},
	}
}

// NewLookupFailedError reports a failed ownership lookup for one IP
func NewLookupFailedError(ip string, cause error) *LookupError {
	return &LookupError{
		Kind:    KindLookupFailed,
		Message: fmt.Sprintf("ownership lookup for %s failed", ip),
		Cause:   cause,
		Context: map[string]interface{}{"ip": ip},
	}
}

// NewMalformedCommandError carries the user-facing message for bad command input
func NewMalformedCommandError(message string) *LookupError {
	return &LookupError{
		Kind:    KindMalformedCommand,
		Message: message,
	}
}

// IsKind reports whether err (or anything it wraps) is a LookupError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return lookupErr.Kind == kind
	}
	return false
}

// UserMessage returns the message of a LookupError without the kind prefix,
// or err.Error() for anything else
func UserMessage(err error) string {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return lookupErr.Message
	}
	return err.Error()
}

// StatusCode returns the HTTP status carried by an UpstreamError, or 0
func StatusCode(err error) int {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) && lookupErr.Kind == KindUpstream {
		if status, ok := lookupErr.Context["status"].(int); ok {
			return status
		}
	}
	return 0
}
