package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func failing(ctx context.Context) error { return errBackend }
func ok(ctx context.Context) error      { return nil }

func testConfig() Config {
	return Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		Timeout:             40 * time.Millisecond,
		MaxRequestsHalfOpen: 1,
	}
}

func TestCircuitBreaker_PassesErrorsThrough(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), failing)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Stats().FailureCount)

	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Zero(t, cb.Stats().FailureCount)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	time.Sleep(50 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(ctx, failing), errBackend)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrOpen)
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	errMissing := errors.New("missing")
	cfg := testConfig()
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, errMissing) }
	cb := New(cfg)

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return errMissing })
		assert.ErrorIs(t, err, errMissing)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCall_ReturnsResult(t *testing.T) {
	cb := New(DefaultConfig())

	got, err := Call(context.Background(), cb, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb := New(testConfig())
	changes := make(chan [2]State, 4)
	cb.OnStateChange(func(from, to State) { changes <- [2]State{from, to} })

	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)

	select {
	case c := <-changes:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, c)
	case <-time.After(time.Second):
		t.Fatal("no state change reported")
	}

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
