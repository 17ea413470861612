package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() Backoff {
	return Backoff{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestDo_FirstAttempt(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastBackoff(), "ping", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastBackoff(), "connect", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", syscall.ECONNREFUSED
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastBackoff(), "connect", func(context.Context) (int, error) {
		calls++
		return 0, eris.Wrap(syscall.ECONNRESET, "db: ping")
	})
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStops(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastBackoff(), "publish", func(context.Context) (int, error) {
		calls++
		return 0, &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Backoff{Attempts: 5, Initial: time.Hour}, "connect", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, syscall.ECONNREFUSED
	})
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	sentinel := errors.New("flaky")
	b := fastBackoff()
	b.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_, err := Do(context.Background(), b, "custom", func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, b.delay(0))
	assert.Equal(t, 400*time.Millisecond, b.delay(2))
	assert.Equal(t, time.Second, b.delay(10))

	b.Jitter = 0.5
	for range 20 {
		d := b.delay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("syntax error"), false},
		{syscall.ECONNREFUSED, true},
		{fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("FATAL: the database system is starting up"), true},
		{&pgconn.PgError{Code: "08006"}, true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{eris.Wrap(&pgconn.PgError{Code: "57P03"}, "db: ping"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "%v", tt.err)
	}
}
