package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestWithBackoff_Success(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: 1 * time.Millisecond}
	attempts := 0

	operation := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	err := WithBackoff(context.Background(), config, operation)
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}

	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	config := Config{MaxRetries: 2, BaseDelay: 1 * time.Millisecond}
	attempts := 0

	operation := func(ctx context.Context) error {
		attempts++
		return &StatusError{Code: http.StatusServiceUnavailable}
	}

	err := WithBackoff(context.Background(), config, operation)
	if err == nil {
		t.Fatal("Expected failure, got success")
	}

	if attempts != 3 { // MaxRetries + 1
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}

	if !strings.HasPrefix(err.Error(), "operation failed after 3 attempts") {
		t.Fatalf("Expected retry failure error, got: %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected wrapped StatusError 503, got: %v", err)
	}
}

func TestWithBackoff_NonRetryableError(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: 1 * time.Millisecond}
	attempts := 0

	operation := func(ctx context.Context) error {
		attempts++
		return &StatusError{URL: "http://example.com/x.pdf", Code: http.StatusNotFound}
	}

	err := WithBackoff(context.Background(), config, operation)
	if err == nil {
		t.Fatal("Expected failure, got success")
	}

	if attempts != 1 {
		t.Fatalf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}

	if !strings.HasPrefix(err.Error(), "non-retryable error") {
		t.Fatalf("Expected non-retryable error, got: %v", err)
	}
}

func TestWithBackoff_ContextCancellation(t *testing.T) {
	config := Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	operation := func(ctx context.Context) error {
		attempts++
		return errors.New("retryable error")
	}

	start := time.Now()
	err := WithBackoff(ctx, config, operation)
	duration := time.Since(start)

	if err == nil {
		t.Fatal("Expected context cancellation error")
	}

	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context error, got: %v", err)
	}

	if duration > 200*time.Millisecond {
		t.Fatalf("Expected quick abort, took %v", duration)
	}
}

func TestWithBackoff_ZeroBaseDelay(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), Config{MaxRetries: 2}, func(ctx context.Context) error {
		attempts++
		return errors.New("connection reset by peer")
	})
	if err == nil {
		t.Fatal("Expected failure")
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout error", errors.New("request timeout"), true},
		{"connection refused", errors.New("connection refused"), true},
		{"5xx server error", errors.New("unexpected status 500"), true},
		{"429 rate limit", errors.New("unexpected status 429"), true},
		{"400 bad request", errors.New("unexpected status 400"), false},
		{"typed 502", &StatusError{Code: 502}, true},
		{"typed 404", fmt.Errorf("fetch: %w", &StatusError{Code: 404}), false},
		{"typed 429", &StatusError{Code: 429}, true},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
		{"permanent", Permanent(errors.New("connection refused")), false},
		{"unknown error", errors.New("some unknown error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestHTTPStatusRetryable(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{200, false},
		{400, false},
		{403, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
		{504, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			result := HTTPStatusRetryable(tt.status)
			if result != tt.expected {
				t.Errorf("HTTPStatusRetryable(%d) = %v, expected %v", tt.status, result, tt.expected)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	if got := (&StatusError{Code: 503}).Error(); got != "unexpected status 503" {
		t.Errorf("got %q", got)
	}
	if got := (&StatusError{URL: "http://x", Code: 404}).Error(); got != "unexpected status 404 from http://x" {
		t.Errorf("got %q", got)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}

	cause := errors.New("parse failed")
	attempts := 0
	err := WithBackoff(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})
	if attempts != 1 {
		t.Fatalf("Expected 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("Expected cause to be wrapped, got %v", err)
	}
}
