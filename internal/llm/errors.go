package llm

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RateLimitError is a transient throttling failure. Callers may retry with backoff.
type RateLimitError struct {
	Message string
	Cause   error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// QuotaError means the account's quota or billing allowance is exhausted.
// It is fatal for the whole job and must never degrade into a placeholder.
type QuotaError struct {
	Message string
	Cause   error
}

func (e *QuotaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("quota exhausted: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("quota exhausted: %s", e.Message)
}

func (e *QuotaError) Unwrap() error {
	return e.Cause
}

// InputTooLargeError means the backend rejected the request for its size
// (typically too many video frames for a long video).
type InputTooLargeError struct {
	Message string
	Cause   error
}

func (e *InputTooLargeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("input too large: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("input too large: %s", e.Message)
}

func (e *InputTooLargeError) Unwrap() error {
	return e.Cause
}

// APICallError represents any other failure from the model API
type APICallError struct {
	Message string
	Cause   error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("API call failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("API call failed: %s", e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// IsRateLimit reports whether err is a transient rate-limit failure
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsQuotaExhausted reports whether err is a fatal quota/billing failure
func IsQuotaExhausted(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsInputTooLarge reports whether the backend rejected the request size
func IsInputTooLarge(err error) bool {
	var tl *InputTooLargeError
	return errors.As(err, &tl)
}

// classify maps a raw SDK error onto the typed classes above. Vendors signal
// these conditions through status codes plus free-text messages, so message
// inspection is confined to this one function; everything downstream switches
// on the returned type, never on strings.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	code := codes.Unknown
	if st, ok := status.FromError(err); ok {
		code = st.Code()
	}
	var gerr *googleapi.Error
	httpStatus := 0
	if errors.As(err, &gerr) {
		httpStatus = gerr.Code
	}

	switch {
	case code == codes.ResourceExhausted || httpStatus == 429:
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return &QuotaError{Message: quotaExcerpt(msg), Cause: err}
		}
		return &RateLimitError{Message: op, Cause: err}
	case code == codes.InvalidArgument || httpStatus == 400:
		if strings.Contains(lower, "too large") || strings.Contains(lower, "image") ||
			strings.Contains(lower, "frame") || strings.Contains(lower, "token") {
			return &InputTooLargeError{Message: op, Cause: err}
		}
	}

	return &APICallError{Message: op, Cause: err}
}

// quotaExcerpt keeps enough of the vendor message for the caller to act on
// (plan name, reset window) without dumping the whole payload into the stream.
func quotaExcerpt(msg string) string {
	const maxLen = 200
	msg = strings.TrimSpace(msg)
	if len(msg) > maxLen {
		return msg[:maxLen] + "..."
	}
	return msg
}
