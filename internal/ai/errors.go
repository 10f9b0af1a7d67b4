package ai

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindTimeout           ErrorKind = "timeout"
	KindHTTP              ErrorKind = "http_error"
	KindEmptyResponse     ErrorKind = "empty_response"
	KindTransport         ErrorKind = "transport"
	KindMalformed         ErrorKind = "malformed_response"
)

// ErrMissingCredential is wrapped by every MissingCredential provider error.
var ErrMissingCredential = errors.New("api key not configured")

// recoverableStatus lists the 4xx codes that advance the chain. Every 5xx does too.
var recoverableStatus = map[int]bool{
	http.StatusUnauthorized:       true,
	http.StatusPaymentRequired:    true,
	http.StatusForbidden:          true,
	http.StatusRequestTimeout:     true,
	http.StatusConflict:           true,
	http.StatusPreconditionFailed: true,
	http.StatusTooManyRequests:    true,
}

// ProviderError is the failure type every provider returns. Status is set for
// KindHTTP only.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Kind == KindHTTP {
		msg = fmt.Sprintf("%s: http %d", e.Provider, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the chain should move on to the next provider.
func (e *ProviderError) Recoverable() bool {
	switch e.Kind {
	case KindMissingCredential, KindTimeout, KindEmptyResponse, KindTransport, KindMalformed:
		return true
	case KindHTTP:
		return e.Status >= http.StatusInternalServerError || recoverableStatus[e.Status]
	}
	return false
}

func newProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func missingCredential(provider string) *ProviderError {
	return newProviderError(provider, KindMissingCredential, ErrMissingCredential)
}

func httpError(provider string, status int, body string) *ProviderError {
	var err error
	if body != "" {
		err = errors.New(body)
	}
	return &ProviderError{Provider: provider, Kind: KindHTTP, Status: status, Err: err}
}

// AsProviderError finds a *ProviderError anywhere in the wrap chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRecoverable is false for anything that is not a recoverable *ProviderError.
func IsRecoverable(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Recoverable()
}
