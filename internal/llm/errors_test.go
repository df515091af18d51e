package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		rate    bool
		quota   bool
		tooBig  bool
		generic bool
	}{
		{
			name: "resource exhausted without quota wording is rate limit",
			err:  status.Error(codes.ResourceExhausted, "requests per minute exceeded"),
			rate: true,
		},
		{
			name:  "resource exhausted mentioning quota is fatal",
			err:   status.Error(codes.ResourceExhausted, "You exceeded your current quota, please check your plan and billing details"),
			quota: true,
		},
		{
			name:   "invalid argument about frames is input too large",
			err:    status.Error(codes.InvalidArgument, "The video has too many frames (images) for this request"),
			tooBig: true,
		},
		{
			name:    "invalid argument about schema stays generic",
			err:     status.Error(codes.InvalidArgument, "response_schema is malformed"),
			generic: true,
		},
		{
			name:    "plain error stays generic",
			err:     fmt.Errorf("connection reset"),
			generic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("test op", tt.err)
			if IsRateLimit(got) != tt.rate {
				t.Errorf("IsRateLimit = %v, want %v (err: %v)", IsRateLimit(got), tt.rate, got)
			}
			if IsQuotaExhausted(got) != tt.quota {
				t.Errorf("IsQuotaExhausted = %v, want %v (err: %v)", IsQuotaExhausted(got), tt.quota, got)
			}
			if IsInputTooLarge(got) != tt.tooBig {
				t.Errorf("IsInputTooLarge = %v, want %v (err: %v)", IsInputTooLarge(got), tt.tooBig, got)
			}
			if tt.generic {
				var api *APICallError
				if !errors.As(got, &api) {
					t.Errorf("expected generic APICallError, got %T", got)
				}
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if got := classify("op", nil); got != nil {
		t.Errorf("classify(nil) = %v, want nil", got)
	}
}

func TestClassifyWrapsCause(t *testing.T) {
	cause := status.Error(codes.ResourceExhausted, "slow down")
	got := classify("op", cause)
	if !errors.Is(got, cause) {
		t.Errorf("classified error does not unwrap to the cause")
	}
}

func TestQuotaExcerptTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := quotaExcerpt(long)
	if len(got) != 203 {
		t.Errorf("quotaExcerpt length = %d, want 203", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("quotaExcerpt should end with ellipsis")
	}
}
