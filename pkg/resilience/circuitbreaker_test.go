package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Second})
	b.now = clock.now
	return b, clock
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	b, clock := newTestBreaker()
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	clock.t = clock.t.Add(time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b, clock := newTestBreaker()
	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })

	clock.t = clock.t.Add(2 * time.Second)
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()
	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return boom })
	assert.Equal(t, StateClosed, b.State())
}

func TestBound(t *testing.T) {
	err := Bound(context.Background(), 10*time.Millisecond, "slow op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	assert.Contains(t, err.Error(), "slow op")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Bound(ctx, time.Second, "op", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, Bound(context.Background(), 0, "op", func(context.Context) error { return nil }))
}
