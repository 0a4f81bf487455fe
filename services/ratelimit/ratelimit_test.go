package ratelimit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pfmp/apperr"
	"pfmp/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicies(t *testing.T) {
	policies, err := LoadPolicies("")
	require.NoError(t, err)

	want := map[string]Policy{
		ActionSendEmail:           {Max: 10, Window: 60 * time.Second},
		ActionResetPassword:       {Max: 5, Window: 60 * time.Second},
		ActionOTPSend:             {Max: 5, Window: 60 * time.Second},
		ActionOTPVerify:           {Max: 5, Window: 900 * time.Second},
		ActionOTPActivationSend:   {Max: 5, Window: 60 * time.Second},
		ActionOTPActivationVerify: {Max: 5, Window: 900 * time.Second},
	}
	assert.Equal(t, want, policies)
}

func TestLoadPoliciesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  otp-send:\n    max: 2\n    window: 30s\n"), 0o600))

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	assert.Equal(t, Policy{Max: 2, Window: 30 * time.Second}, policies[ActionOTPSend])
	assert.Equal(t, 10, policies[ActionSendEmail].Max)
}

func TestParsePoliciesRejectsNonPositive(t *testing.T) {
	_, err := ParsePolicies([]byte("policies:\n  x:\n    max: 0\n    window: 1s\n"))
	assert.Error(t, err)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(counter Counter, c *clock) *Limiter {
	l := NewLimiter(map[string]Policy{ActionOTPVerify: {Max: 5, Window: 15 * time.Minute}}, counter)
	l.now = c.now
	return l
}

func testLimiterWindow(t *testing.T, counter Counter) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(counter, c)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, ActionOTPVerify, "10.0.0.1"), "attempt %d", i+1)
	}

	err := l.Allow(ctx, ActionOTPVerify, "10.0.0.1")
	require.ErrorIs(t, err, apperr.ErrRateLimited)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 15*time.Minute, appErr.RetryAfter)
	assert.Contains(t, appErr.Message, "15 minutes")

	// other IPs and unknown actions are unaffected
	assert.NoError(t, l.Allow(ctx, ActionOTPVerify, "10.0.0.2"))
	assert.NoError(t, l.Allow(ctx, "unknown-action", "10.0.0.1"))

	// a new window starts once the old one has elapsed
	c.t = c.t.Add(15 * time.Minute)
	assert.NoError(t, l.Allow(ctx, ActionOTPVerify, "10.0.0.1"))
}

func TestLimiterWithMemoryCounter(t *testing.T) {
	testLimiterWindow(t, NewMemoryCounter())
}

func TestLimiterWithGormCounter(t *testing.T) {
	testLimiterWindow(t, NewGormCounter(dbtest.New(t)))
}

func TestGormCounterConcurrentIncrements(t *testing.T) {
	counter := NewGormCounter(dbtest.New(t))
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := counter.Incr(context.Background(), "otp-send|1.2.3.4", time.Minute, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, _, err := counter.Incr(context.Background(), "otp-send|1.2.3.4", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 21, count)
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func TestLimiterFailsOpen(t *testing.T) {
	l := newTestLimiter(brokenCounter{}, &clock{t: time.Now()})
	for i := 0; i < 10; i++ {
		assert.NoError(t, l.Allow(context.Background(), ActionOTPVerify, "10.0.0.1"))
	}
}
