package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindUnavailable covers providers that are not configured or could not be reached in time.
	KindUnavailable ErrorKind = "unavailable"
	// KindProviderError covers failures reported by the vendor.
	KindProviderError ErrorKind = "provider_error"
)

// ErrNotConfigured marks a provider without credentials.
var ErrNotConfigured = errors.New("provider not configured")

// Error is a normalized provider failure.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause == nil || errors.Is(e.Cause, ErrNotConfigured) {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotConfigured builds the failure reported for a provider that is disabled.
func NotConfigured(provider string) *Error {
	return &Error{
		Kind:     KindUnavailable,
		Provider: provider,
		Message:  provider + " not configured",
		Cause:    ErrNotConfigured,
	}
}

// ClassifyError maps a vendor or transport error onto an *Error.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := statusCodeOf(err)

	classified := func(kind ErrorKind, message string, retryable bool) *Error {
		return &Error{
			Kind:       kind,
			Provider:   provider,
			Message:    message,
			Retryable:  retryable,
			StatusCode: statusCode,
			Cause:      err,
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timeout"):
		return classified(KindUnavailable, "request timed out", true)
	case errors.Is(err, context.Canceled) || strings.Contains(lower, "context canceled"):
		return classified(KindUnavailable, "request canceled", true)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classified(KindUnavailable, "connection failed", true)
	case statusCode == 401 || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key"):
		return classified(KindProviderError, "authentication failed", false)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "decommissioned")):
		return classified(KindProviderError, "model not found", false)
	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		return classified(KindProviderError, "rate limited", true)
	case statusCode >= 500:
		return classified(KindProviderError, "server error", true)
	default:
		return classified(KindProviderError, "request failed", false)
	}
}

// statusPatterns match where vendor SDKs print the HTTP status: go-openai and
// its forks ("status code: 401"), the anthropic SDK (`": 429 Too Many
// Requests`) and genai ("Error 503,").
var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)status(?: code)?[:=]?\s*(\d{3})\b`),
	regexp.MustCompile(`": (\d{3}) [A-Z]`),
	regexp.MustCompile(`\bError (\d{3}),`),
}

func statusCodeOf(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	msg := err.Error()
	for _, re := range statusPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			if code, convErr := strconv.Atoi(m[1]); convErr == nil && code >= 100 && code < 600 {
				return code
			}
		}
	}
	return 0
}

// IsUnavailable reports whether err represents an unreachable or disabled provider.
func IsUnavailable(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == KindUnavailable
}
