// Package resilience provides retry with exponential backoff and the
// provider error taxonomy: transient failures are retried locally, while
// rate limits and client errors surface immediately as typed errors so the
// pipeline can skip the provider for the rest of the run.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindTransient covers timeouts, 5xx, and connection failures.
	// Safe to retry.
	KindTransient ErrorKind = "transient"
	// KindRateLimited is an explicit 429. Never retried within a call;
	// the provider is skipped for the rest of the run.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuth is a credential failure (401/403). Never retried.
	KindAuth ErrorKind = "auth"
	// KindBadRequest is a malformed request (other 4xx). Never retried.
	KindBadRequest ErrorKind = "bad_request"
	// KindTimeout is a per-call deadline expiry.
	KindTimeout ErrorKind = "timeout"
)

// ProviderError is a classified failure from an enrichment provider.
// Provider clients never panic past their boundary; everything comes back
// as one of these so the pipeline can continue with partial data.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with a provider name and kind.
func NewProviderError(provider string, kind ErrorKind, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: statusCode, Err: err}
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 401 || status == 403:
		return KindAuth
	case status == 408:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindBadRequest
	default:
		return KindTransient
	}
}

// Classify assigns a kind to an arbitrary error: provider errors keep
// their kind, deadline expiries become timeouts, network-level transients
// stay retryable.
func Classify(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if isNetworkTransient(err) {
		return KindTransient
	}
	return KindBadRequest
}

// IsRetryable reports whether a failed call may be retried: transient
// failures and timeouts only. Rate limits and client errors are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch Classify(err) {
	case KindTransient, KindTimeout:
		return true
	}
	return false
}

// isNetworkTransient detects connection-level failures that predate any
// HTTP status: resets, refused connections, DNS flaps, TLS timeouts.
func isNetworkTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from HTTP clients lose their type; fall back to
	// message heuristics.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
