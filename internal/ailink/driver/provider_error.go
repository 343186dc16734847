package driver

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure. Callers switch on the kind rather
// than parsing messages.
type ErrorKind string

const (
	// KindConfiguration means the client was not configured to talk to the
	// provider (missing or placeholder credential). Nothing was sent.
	KindConfiguration ErrorKind = "configuration"
	// KindInvalidCredential is a 401 from the provider.
	KindInvalidCredential ErrorKind = "invalid_credential"
	// KindRateLimited is a 429 from the provider.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient covers 5xx responses and transport failures.
	KindTransient ErrorKind = "transient"
	// KindMalformedRequest covers other 4xx responses and application-level
	// errors reported inside a 2xx body.
	KindMalformedRequest ErrorKind = "malformed_request"
	// KindUnexpectedResponse is a 2xx body that does not carry the expected
	// content.
	KindUnexpectedResponse ErrorKind = "unexpected_response"
	// KindRetriesExhausted wraps the last retryable failure once the attempt
	// budget is spent.
	KindRetriesExhausted ErrorKind = "retries_exhausted"
)

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// ProviderError is the classified failure returned by drivers.
//
// Drivers should populate RawResponse with the provider response body bytes.
// RawResponse must never include API keys.
type ProviderError struct {
	Provider    string
	Kind        ErrorKind
	StatusCode  int
	Message     string
	RawResponse []byte
	Attempts    int
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *ProviderError) Retryable() bool {
	return e != nil && e.Kind.Retryable()
}

// KindOf extracts the error kind from err, or "" when err is not a ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) && pe != nil {
		return pe.Kind
	}
	return ""
}
