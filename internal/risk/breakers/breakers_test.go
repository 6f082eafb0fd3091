package breakers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

func testRegistry(t *testing.T, cfgs ...config.BreakerConfig) *Registry {
	t.Helper()
	r, err := NewRegistry(cfgs, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func dailyLossBreaker(autoReset bool) config.BreakerConfig {
	return config.BreakerConfig{
		Name:      "daily-loss",
		Condition: "daily_loss",
		Threshold: 0.07,
		Cooldown:  config.Duration(time.Hour),
		AutoReset: autoReset,
	}
}

func TestBreakerTriggersAndHolds(t *testing.T) {
	r := testRegistry(t, dailyLossBreaker(true))
	base := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	now := base
	r.SetClock(func() time.Time { return now })
	ctx := context.Background()

	// 8% daily loss breaches the 7% threshold.
	events, err := r.Evaluate(ctx, Reading{DailyLoss: 0.08})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StateTriggered, events[0].State)
	assert.True(t, r.AnyTriggered())

	// Condition clears immediately, but the cooldown has not elapsed: the
	// breaker stays triggered.
	now = base.Add(10 * time.Minute)
	events, err = r.Evaluate(ctx, Reading{DailyLoss: 0.0})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, r.AnyTriggered())

	// Past the cooldown with the condition still breached: no reset either.
	now = base.Add(2 * time.Hour)
	events, err = r.Evaluate(ctx, Reading{DailyLoss: 0.09})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, r.AnyTriggered())

	// Past the cooldown and clear: auto-reset.
	events, err = r.Evaluate(ctx, Reading{DailyLoss: 0.01})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StateActive, events[0].State)
	assert.False(t, r.AnyTriggered())
}

func TestBreakerManualResetOnly(t *testing.T) {
	r := testRegistry(t, dailyLossBreaker(false))
	base := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	now := base
	r.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := r.Evaluate(ctx, Reading{DailyLoss: 0.10})
	require.NoError(t, err)
	require.True(t, r.AnyTriggered())

	// Cooldown elapsed, condition clear; without auto-reset it stays put.
	now = base.Add(3 * time.Hour)
	events, err := r.Evaluate(ctx, Reading{DailyLoss: 0.0})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, r.AnyTriggered())

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.NoError(t, r.Reset(snap[0].ID))
	assert.False(t, r.AnyTriggered())
}

func TestBreakerConditionsMapToReading(t *testing.T) {
	r := testRegistry(t,
		config.BreakerConfig{Name: "vol", Condition: "volatility_spike", Threshold: 3.0, Cooldown: config.Duration(time.Minute), AutoReset: true},
		config.BreakerConfig{Name: "corr", Condition: "correlation_breakdown", Threshold: 0.95, Cooldown: config.Duration(time.Minute), AutoReset: true},
	)
	ctx := context.Background()

	events, err := r.Evaluate(ctx, Reading{VolatilityRatio: 3.5, MaxCorrelation: 0.50})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Condition("volatility_spike"), events[0].Condition)

	events, err = r.Evaluate(ctx, Reading{VolatilityRatio: 3.5, MaxCorrelation: 0.97})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Condition("correlation_breakdown"), events[0].Condition)
}

func TestBreakerSnapshotReflectsCurrentValue(t *testing.T) {
	r := testRegistry(t, dailyLossBreaker(true))
	_, err := r.Evaluate(context.Background(), Reading{DailyLoss: 0.03})
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "daily-loss", snap[0].Name)
	assert.Equal(t, "active", snap[0].State)
	assert.InDelta(t, 0.03, snap[0].CurrentValue, 1e-12)
}

func TestNewRegistryRejectsUnknownCondition(t *testing.T) {
	_, err := NewRegistry([]config.BreakerConfig{
		{Name: "bad", Condition: "moon_phase", Threshold: 1, Cooldown: config.Duration(time.Minute)},
	}, zaptest.NewLogger(t))
	assert.True(t, riskerrors.IsConfigError(err))
}

func TestResetUnknownID(t *testing.T) {
	r := testRegistry(t, dailyLossBreaker(true))
	err := r.Reset(uuid.New())
	assert.True(t, riskerrors.IsInvalidInput(err))
}

func TestEvaluateCancelledContext(t *testing.T) {
	r := testRegistry(t, dailyLossBreaker(true))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Evaluate(ctx, Reading{DailyLoss: 0.50})
	assert.ErrorIs(t, err, context.Canceled)
}
