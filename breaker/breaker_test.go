package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }

func succeeding(context.Context) error { return nil }

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		err := b.Do(ctx, failing)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, StateClosed, b.State())
	}

	err := b.Do(ctx, failing)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	// Open circuit short-circuits without calling fn.
	called := false
	err = b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerRollingWindow(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(Config{FailureThreshold: 3, Window: time.Minute})

	require.Error(t, b.Do(ctx, failing))
	require.Error(t, b.Do(ctx, failing))

	// The early failures age out of the window.
	*now = now.Add(2 * time.Minute)

	require.Error(t, b.Do(ctx, failing))
	assert.Equal(t, StateClosed, b.State(), "stale failures must not count toward the threshold")
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(Config{FailureThreshold: 1, CoolDown: 30 * time.Second})

	require.Error(t, b.Do(ctx, failing))
	require.Equal(t, StateOpen, b.State())

	// Still cooling down.
	assert.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)

	*now = now.Add(31 * time.Second)

	// Trial call allowed and succeeds; circuit closes.
	assert.NoError(t, b.Do(ctx, succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(Config{FailureThreshold: 1, CoolDown: 30 * time.Second})

	require.Error(t, b.Do(ctx, failing))
	*now = now.Add(31 * time.Second)

	assert.ErrorIs(t, b.Do(ctx, failing), errBoom)
	assert.Equal(t, StateOpen, b.State())

	// The cool-down restarts from the half-open failure.
	assert.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)
}

func TestBreakerHalfOpenCapsTrialCalls(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, CoolDown: time.Second, HalfOpenMaxCalls: 1})

	require.Error(t, b.Do(context.Background(), failing))
	*now = now.Add(2 * time.Second)

	// First allow() moves to half-open and takes the only slot.
	require.NoError(t, b.allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Second concurrent caller is rejected while the trial is in flight.
	assert.ErrorIs(t, b.allow(), ErrOpen)

	// The trial succeeding closes the circuit.
	b.record(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessesToClose(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(Config{
		FailureThreshold: 1,
		CoolDown:         time.Second,
		HalfOpenMaxCalls: 1,
		SuccessesToClose: 2,
	})

	require.Error(t, b.Do(ctx, failing))
	*now = now.Add(2 * time.Second)

	require.NoError(t, b.Do(ctx, succeeding))
	assert.Equal(t, StateHalfOpen, b.State(), "one success is not enough")

	require.NoError(t, b.Do(ctx, succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIsFailureFilter(t *testing.T) {
	ctx := context.Background()
	errDomain := errors.New("not found")

	b, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, errDomain)
		},
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do(ctx, func(context.Context) error { return errDomain }), errDomain)
	}
	assert.Equal(t, StateClosed, b.State())

	assert.ErrorIs(t, b.Do(ctx, failing), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerOnStateChange(t *testing.T) {
	ctx := context.Background()

	type change struct{ from, to State }
	var changes []change

	b, now := newTestBreaker(Config{
		Name:             "identity-store",
		FailureThreshold: 1,
		CoolDown:         time.Second,
		OnStateChange: func(name string, from, to State) {
			assert.Equal(t, "identity-store", name)
			changes = append(changes, change{from, to})
		},
	})

	require.Error(t, b.Do(ctx, failing))
	*now = now.Add(2 * time.Second)
	require.NoError(t, b.Do(ctx, succeeding))

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
