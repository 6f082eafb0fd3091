package performance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

func TestMaxDrawdown(t *testing.T) {
	res, err := MaxDrawdown([]float64{100, 110, 90, 95, 120})
	require.NoError(t, err)

	assert.InDelta(t, 20.0/110.0, res.MaxDrawdown, 1e-12)
	assert.Equal(t, 1, res.PeakIndex)
	assert.Equal(t, 2, res.TroughIndex)
	require.NotNil(t, res.RecoverySteps)
	assert.Equal(t, 2, *res.RecoverySteps)
}

func TestMaxDrawdownNoRecovery(t *testing.T) {
	res, err := MaxDrawdown([]float64{100, 80, 85})
	require.NoError(t, err)
	assert.InDelta(t, 0.20, res.MaxDrawdown, 1e-12)
	assert.Nil(t, res.RecoverySteps)
}

func TestMaxDrawdownMonotonicCurve(t *testing.T) {
	res, err := MaxDrawdown([]float64{100, 105, 110, 120})
	require.NoError(t, err)
	assert.Zero(t, res.MaxDrawdown)
	assert.Nil(t, res.RecoverySteps)
}

func TestMaxDrawdownValidation(t *testing.T) {
	_, err := MaxDrawdown([]float64{100})
	assert.True(t, riskerrors.IsInvalidInput(err), "too short")

	_, err = MaxDrawdown([]float64{100, -5, 110})
	assert.True(t, riskerrors.IsInvalidInput(err), "non-positive equity")
}

func TestRMultiples(t *testing.T) {
	trades := []Trade{
		{EntryPrice: 100, StopPrice: 95, ExitPrice: 110, Size: 10}, // +2R
		{EntryPrice: 100, StopPrice: 95, ExitPrice: 95, Size: 10},  // -1R
		{EntryPrice: 50, StopPrice: 48, ExitPrice: 53, Size: 20},   // +1.5R
	}
	sum, err := RMultiples(trades)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Trades)
	assert.InDelta(t, 2.0/3.0, sum.WinRate, 1e-12)
	assert.InDelta(t, 1.75, sum.AvgWinR, 1e-12)
	assert.InDelta(t, -1.0, sum.AvgLossR, 1e-12)
	assert.InDelta(t, (2.0/3.0)*1.75+(1.0/3.0)*-1.0, sum.Expectancy, 1e-12)
	assert.Equal(t, []float64{2, -1, 1.5}, sum.RValues)
}

func TestRMultiplesZeroRisk(t *testing.T) {
	_, err := RMultiples([]Trade{{EntryPrice: 100, StopPrice: 100, ExitPrice: 110, Size: 10}})
	assert.True(t, riskerrors.IsInvalidInput(err))
}

func TestRiskAdjustedMetrics(t *testing.T) {
	returns := []float64{0.01, -0.005, 0.008, -0.002, 0.004, -0.007, 0.012, 0.001}
	m, err := RiskAdjustedMetrics(returns, 0.02)
	require.NoError(t, err)

	assert.NotZero(t, m.Sharpe)
	assert.NotZero(t, m.Sortino)
	assert.NotZero(t, m.Calmar)
	assert.Positive(t, m.Omega)
	assert.Positive(t, m.TailRatio)
}

func TestRiskAdjustedMetricsOmegaSaturates(t *testing.T) {
	// Every return clears the daily risk-free hurdle: no downside mass.
	m, err := RiskAdjustedMetrics([]float64{0.01, 0.02, 0.015, 0.03}, 0.0)
	require.NoError(t, err)
	assert.Equal(t, math.MaxFloat64, m.Omega)
}

func TestRiskAdjustedMetricsConstantSeries(t *testing.T) {
	m, err := RiskAdjustedMetrics([]float64{0.001, 0.001, 0.001}, 0.0)
	require.NoError(t, err)
	assert.Zero(t, m.Sharpe)  // zero dispersion
	assert.Zero(t, m.Sortino) // no downside observations
	assert.Zero(t, m.Calmar)  // no drawdown on a rising curve
}

func TestRiskAdjustedMetricsValidation(t *testing.T) {
	_, err := RiskAdjustedMetrics([]float64{0.01}, 0.0)
	assert.True(t, riskerrors.IsInvalidInput(err), "too short")

	_, err = RiskAdjustedMetrics([]float64{0.01, math.Inf(1)}, 0.0)
	assert.True(t, riskerrors.IsInvalidInput(err), "non-finite return")
}
