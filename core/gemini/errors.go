package gemini

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed model call. Classification happens once, at
// the invoker boundary; retry logic elsewhere switches on the kind instead
// of inspecting error messages.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrInvalidCredential
	ErrQuotaExceeded
	ErrServiceOverloaded
	ErrNetwork
	ErrTimeout
	ErrEmptyResponse
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidCredential:
		return "invalid_credential"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrServiceOverloaded:
		return "service_overloaded"
	case ErrNetwork:
		return "network_error"
	case ErrTimeout:
		return "timeout"
	case ErrEmptyResponse:
		return "empty_response"
	default:
		return "unknown"
	}
}

// APIError is the structured error returned by Client.Generate.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gemini: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gemini: %s", e.Kind)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error chain, ErrUnknown when
// the error did not originate at the invoker boundary.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrUnknown
}
