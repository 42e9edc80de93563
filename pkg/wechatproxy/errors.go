package wechatproxy

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable matches failures where discovery found no endpoint.
	ErrServiceUnavailable = errors.New("wechatproxy: service unavailable")
	// ErrTransport matches failures where the request never got a response.
	ErrTransport = errors.New("wechatproxy: transport failure")
)

// HTTPError is returned when the backend answers with a non-success status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("wechatproxy: code: %d, body: %s", e.StatusCode, e.Body)
}

// ServiceUnavailableError is returned when the logical service has no registered endpoint.
type ServiceUnavailableError struct {
	Service string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("wechatproxy: service %q not found in registry", e.Service)
}

func (e *ServiceUnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// TransportError wraps a network failure of operation Op against URL.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wechatproxy: %s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
