package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory,
// including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"circuit open", fmt.Errorf("forecast: %w", circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"not found", ErrNotFound, ErrorCategoryNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", fmt.Errorf("exhausted retries: %w", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"bad status", fmt.Errorf("%w: HTTP 400", ErrBadStatus), ErrorCategoryBadStatus},
		{"malformed", fmt.Errorf("%w: parse", ErrMalformedResponse), ErrorCategoryParsing},
		{"timeout in message", errors.New("i/o timeout"), ErrorCategoryTimeout},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
