package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryNetwork     ErrorCategory = "network"
	ErrorCategoryNotFound    ErrorCategory = "not_found"
	ErrorCategoryRateLimited ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx ErrorCategory = "upstream_5xx"
	ErrorCategoryBadStatus   ErrorCategory = "bad_status"
	ErrorCategoryCircuitOpen ErrorCategory = "circuit_open"
	ErrorCategoryParsing     ErrorCategory = "parsing"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorCategoryNotFound
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return ErrorCategoryUpstream5xx
	}
	if errors.Is(err, ErrBadStatus) {
		return ErrorCategoryBadStatus
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorCategoryParsing
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}

	return ErrorCategoryUnknown
}
