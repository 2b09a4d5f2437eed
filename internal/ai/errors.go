package ai

import (
	"fmt"
	"net/http"
)

// ValidationError reports an inbound request rejected before any outbound call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// AuthError reports a failed credential exchange.
type AuthError struct {
	// Source names the credential mechanism, e.g. "device-code" or "api-key".
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("obtaining credential: %v", e.Err)
	}
	return fmt.Sprintf("obtaining %s credential: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a model endpoint that answered with a non-success
// status or could not be reached at all. StatusCode is zero in the latter case.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("model endpoint unreachable: %v", e.Err)
	}
	return fmt.Sprintf("model endpoint error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the endpoint rejected the credential.
func (e *UpstreamError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}
