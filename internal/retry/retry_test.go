package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDoRecoversOnThirdAttempt(t *testing.T) {
	calls := 0
	start := time.Now()
	p := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}

	result, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "third", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "third", result)
	assert.Equal(t, 3, calls)
	// Waited baseDelay then 2*baseDelay.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "boom")
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Second}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelayDoubles(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
	assert.Equal(t, 2*time.Second, p.delay(1))
	assert.Equal(t, 4*time.Second, p.delay(2))
	assert.Equal(t, 8*time.Second, p.delay(3))
}

func TestDelayCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, 3*time.Second, p.delay(5))
}

func TestApplyDefaults(t *testing.T) {
	var p Policy
	p.ApplyDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)
}
