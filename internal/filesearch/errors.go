package filesearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/filesearch/internal/retry"
	openai "github.com/sashabaranov/go-openai"
)

// ErrStoreIDRequired is returned by store-scoped calls given an empty ID.
var ErrStoreIDRequired = errors.New("vector store ID is required")

// Reason categorizes why an API request failed.
type Reason string

const (
	ReasonRateLimit      Reason = "rate_limit"
	ReasonAuth           Reason = "auth"
	ReasonTimeout        Reason = "timeout"
	ReasonServerError    Reason = "server_error"
	ReasonInvalidRequest Reason = "invalid_request"
	ReasonNotFound       Reason = "not_found"
	ReasonUnknown        Reason = "unknown"
)

// IsRetryable returns true if retrying may succeed.
func (r Reason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// APIError is a failed OpenAI API call.
type APIError struct {
	Reason     Reason
	Endpoint   string
	StatusCode int
	Type       string
	Code       string
	Message    string
	// RetryAfterHint is the server's Retry-After value, if any.
	RetryAfterHint time.Duration
	Cause          error
}

func (e *APIError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Endpoint != "" {
		parts = append(parts, e.Endpoint)
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// RetryAfter exposes the server hint to the retry loop.
func (e *APIError) RetryAfter() time.Duration {
	return e.RetryAfterHint
}

// StatusLabel is the metrics label for err.
func StatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Reason)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return string(ReasonUnknown)
}

// classify converts err into an *APIError. Non-retryable errors are marked
// permanent for the retry loop.
func classify(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	if retry.IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}

	apiErr := &APIError{Endpoint: endpoint, Cause: err}

	var existing *APIError
	var oaErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &existing):
		apiErr = existing
		if apiErr.Endpoint == "" {
			apiErr.Endpoint = endpoint
		}
	case errors.As(err, &oaErr):
		apiErr.StatusCode = oaErr.HTTPStatusCode
		apiErr.Type = oaErr.Type
		apiErr.Message = oaErr.Message
		if code, ok := oaErr.Code.(string); ok {
			apiErr.Code = code
		}
	case errors.As(err, &reqErr):
		apiErr.StatusCode = reqErr.HTTPStatusCode
	}

	if apiErr.Reason == "" {
		apiErr.Reason = classifyStatusCode(apiErr.StatusCode)
		if apiErr.Reason == ReasonUnknown {
			apiErr.Reason = classifyMessage(err)
		}
	}

	if !apiErr.Reason.IsRetryable() {
		return retry.Permanent(apiErr)
	}
	return apiErr
}

func classifyStatusCode(status int) Reason {
	switch {
	case status == 0:
		return ReasonUnknown
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusNotFound:
		return ReasonNotFound
	case status == http.StatusRequestTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	case status >= 400:
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// classifyMessage handles transport errors without a status code.
func classifyMessage(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "eof"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ReasonRateLimit
	default:
		return ReasonUnknown
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	var secs float64
	if _, err := fmt.Sscanf(v, "%g", &secs); err != nil || secs < 0 {
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
