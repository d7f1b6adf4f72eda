package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTestError    = errors.New("test error")
	errNonRetryable = errors.New("non-retryable error")
)

func fastConfig(maxAttempts int) Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  maxAttempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errTestError
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		attempts++
		return errTestError
	})

	if !errors.Is(err, errTestError) {
		t.Errorf("Expected wrapped test error, got: %v", err)
	}
	if attempts != 3 { // MaxAttempts + 1 (initial attempt)
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetry_Disabled(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{Enabled: false}, func() error {
		attempts++
		return errTestError
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry), got: %d", attempts)
	}
}

func TestRetry_ForeverKeepsGoingPastMaxAttempts(t *testing.T) {
	cfg := fastConfig(1)
	cfg.Forever = true

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 6 {
			return errTestError
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got: %v", err)
	}
	if attempts != 6 {
		t.Errorf("Expected 6 attempts, got: %d", attempts)
	}
}

func TestRetry_ForeverStopsOnContextCancellation(t *testing.T) {
	cfg := fastConfig(0)
	cfg.Forever = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		return errTestError
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context cancellation, got: %v", err)
	}
	if attempts < 1 {
		t.Errorf("Expected at least 1 attempt before cancellation, got: %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	cfg := fastConfig(3)
	cfg.NonRetryableErrors = []error{errNonRetryable}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errNonRetryable
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (non-retryable), got: %d", attempts)
	}
}

func TestRetry_OnRetryHook(t *testing.T) {
	cfg := fastConfig(2)

	var delays []time.Duration
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	_ = Retry(context.Background(), cfg, func() error { return errTestError })

	if len(delays) != 2 {
		t.Fatalf("Expected 2 retry callbacks, got: %d", len(delays))
	}
	if delays[0] != 5*time.Millisecond || delays[1] != 10*time.Millisecond {
		t.Errorf("Unexpected delays: %v", delays)
	}
}

func TestRetryWithResult_Success(t *testing.T) {
	attempts := 0
	result, err := RetryWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errTestError
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got: %s", result)
	}
}

func TestCalculateDelay_ExponentialBackoff(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	if d := calculateDelay(cfg, 0); d != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got: %v", d)
	}
	if d := calculateDelay(cfg, 1); d != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got: %v", d)
	}
	if d := calculateDelay(cfg, 2); d != 400*time.Millisecond {
		t.Errorf("Expected 400ms, got: %v", d)
	}
}

func TestCalculateDelay_MaxDelayCap(t *testing.T) {
	cfg := ReconnectConfig(time.Second, 5*time.Second)
	cfg.Jitter = false

	if d := calculateDelay(cfg, 10); d != 5*time.Second {
		t.Errorf("Expected cap of 5s, got: %v", d)
	}
	if d := calculateDelay(cfg, 10000); d != 5*time.Second {
		t.Errorf("Expected cap of 5s for huge attempt counts, got: %v", d)
	}
}

func TestCalculateDelay_WithJitter(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	baseDelay := 200 * time.Millisecond
	minDelay := baseDelay - baseDelay/4
	maxDelay := baseDelay + baseDelay/4

	for i := 0; i < 20; i++ {
		delay := calculateDelay(cfg, 1)
		if delay < minDelay || delay > maxDelay {
			t.Errorf("Delay %d out of range: got %v, expected between %v and %v", i, delay, minDelay, maxDelay)
		}
	}
}
