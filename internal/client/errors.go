package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/commons/http"
	"github.com/samber/lo"
)

// APIError is the fallback for any non-2xx response that does not map to a
// more specific error type. It is not retried.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
}

// NotFoundError signals a negative probe result. Callers treat it as an
// answer, not a failure.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// RateLimitedError carries the server-directed backoff duration, if any.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// ConflictError reports a uniqueness collision on create.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Detail)
}

// ValidationError reports a request the server rejected as semantically
// invalid (HTTP 422).
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Detail)
}

// TransientError wraps a network-level failure that never produced an HTTP
// response. These are safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MissingPreconditionError reports an externally provisioned object the
// migration depends on (VCS provider, agent pool, provider configuration)
// that could not be found. It aborts the run.
type MissingPreconditionError struct {
	What string
}

func (e *MissingPreconditionError) Error() string {
	return fmt.Sprintf("missing precondition: %s", e.What)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	ok := errors.As(err, &rl)
	return rl, ok
}

// IsDuplicate reports whether err indicates the object already exists on the
// target. Scalr answers duplicate creates with 422 rather than 409, so the
// error detail has to be inspected as well.
func IsDuplicate(err error) bool {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return true
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	detail := strings.ToLower(ve.Detail)
	return strings.Contains(detail, "already exists") ||
		strings.Contains(detail, "already in use") ||
		strings.Contains(detail, "has already been taken") ||
		strings.Contains(detail, "must be unique")
}

// errorDocument is the JSON:API error envelope both services answer with.
type errorDocument struct {
	Errors []errorEntry `json:"errors"`
}

type errorEntry struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func errorDetail(resp *http.Response) string {
	body, err := resp.AsString()
	if err != nil || body == "" {
		return ""
	}
	var doc errorDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil || len(doc.Errors) == 0 {
		return strings.TrimSpace(body)
	}
	details := lo.Map(doc.Errors, func(e errorEntry, _ int) string {
		if e.Detail != "" {
			return e.Detail
		}
		return e.Title
	})
	return strings.Join(details, "; ")
}

// ClassifyResponse turns a non-2xx response into the typed error the executor
// and the orchestrator dispatch on. 5xx responses intentionally map to the
// terminal APIError rather than a retryable one.
func ClassifyResponse(method, url string, resp *http.Response) error {
	if resp.IsOK() {
		return nil
	}
	switch resp.StatusCode {
	case 404:
		detail := errorDetail(resp)
		if detail == "" {
			detail = url
		}
		return &NotFoundError{Resource: detail}
	case 429:
		return &RateLimitedError{RetryAfter: retryAfter(resp)}
	case 409:
		return &ConflictError{Detail: errorDetail(resp)}
	case 422:
		return &ValidationError{Detail: errorDetail(resp)}
	default:
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        url,
			Detail:     errorDetail(resp),
		}
	}
}

// retryAfter extracts the server-directed delay from a 429 response. TFC
// publishes a fractional reset in x-ratelimit-reset, standard proxies use
// Retry-After. Fractions round up so a 0.2s directive still sleeps.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && secs > 0 {
			return time.Duration(math.Ceil(secs)) * time.Second
		}
	}
	if v := resp.Header.Get("x-ratelimit-reset"); v != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && secs > 0 {
			return time.Duration(math.Ceil(secs)) * time.Second
		}
	}
	return 0
}
