package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

// Error is a failure while talking to an external provider. Retryable
// failures (transport timeouts, unreachable hosts, provider 5xx) may be
// retried by the caller with backoff; non-retryable ones are terminal for
// the attempt.
type Error struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "non-retryable"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsRetryable(err error) bool {
	var providerErr *Error
	return errors.As(err, &providerErr) && providerErr.Retryable
}

func wrapTransportError(providerName string, err error) error {
	retryable := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) {
		retryable = true
	}
	return &Error{Provider: providerName, Retryable: retryable, Err: err}
}

func wrapStatusError(providerName, path string, statusCode int, body []byte) error {
	return &Error{
		Provider:  providerName,
		Retryable: statusCode >= 500,
		Err:       fmt.Errorf("request failed: path=%s status=%d body=%s", path, statusCode, string(body)),
	}
}
