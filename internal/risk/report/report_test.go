package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantrisk/riskcore/internal/config"
	"github.com/quantrisk/riskcore/internal/risk/factor"
	"github.com/quantrisk/riskcore/internal/risk/limits"
	"github.com/quantrisk/riskcore/internal/risk/liquidity"
	"github.com/quantrisk/riskcore/internal/risk/metricsengine"
	"github.com/quantrisk/riskcore/internal/risk/performance"
	"github.com/quantrisk/riskcore/internal/risk/stress"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/models"
)

func testAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return NewAggregator(config.ReportConfig{
		VaRCapPct:    0.10,
		StressCapPct: 0.50,
		DrawdownCap:  0.50,
	}, zaptest.NewLogger(t))
}

func testInputs() Inputs {
	steps := 3
	return Inputs{
		PortfolioValue: 1_000_000,
		VaR: map[metricsengine.Method]*metricsengine.VaRResult{
			metricsengine.MethodHistorical: {Method: metricsengine.MethodHistorical, VaR95: 20_000, VaR99: 30_000, CVaR95: 25_000, CVaR99: 40_000},
			metricsengine.MethodParametric: {Method: metricsengine.MethodParametric, VaR95: 18_000, VaR99: 28_000, CVaR95: 24_000, CVaR99: 36_000},
		},
		Stress: []*stress.Result{
			{ScenarioKey: "crash", TotalImpact: -250_000, ImpactPct: -0.25},
			{ScenarioKey: "rates", TotalImpact: -100_000, ImpactPct: -0.10},
		},
		Factors: &factor.Analysis{
			TotalVariance: 0.04,
			Factors: []factor.Risk{
				{Factor: factor.FactorMarketBeta, Exposure: 1.1, Component: 0.03, PctOfVar: 0.75},
				{Factor: factor.FactorRates, Exposure: -0.4, Component: 0.01, PctOfVar: 0.25},
			},
		},
		Correlations: &models.CorrelationMatrix{
			Symbols: []string{"AAPL", "AGG"},
			Values:  [][]float64{{1, -0.2}, {-0.2, 1}},
		},
		Liquidity: &liquidity.Risk{Score: 80},
		Drawdown:  &performance.DrawdownResult{MaxDrawdown: 0.15, RecoverySteps: &steps},
		Limits:    &limits.Report{At: time.Now()},
	}
}

func TestAggregateScoresComponents(t *testing.T) {
	a := testAggregator(t)
	rpt, err := a.Aggregate(context.Background(), testInputs())
	require.NoError(t, err)

	// avg VaR99 = 29k on 1M = 2.9% of the 10% cap -> 29.
	assert.InDelta(t, 29, rpt.Components.VaR, 1e-9)
	// avg |impact| = 17.5% of the 50% cap -> 35.
	assert.InDelta(t, 35, rpt.Components.Stress, 1e-9)
	// liquidity subscore inverts the 0-100 liquidity score.
	assert.InDelta(t, 20, rpt.Components.Liquidity, 1e-9)
	// 15% drawdown against the 50% cap -> 30.
	assert.InDelta(t, 30, rpt.Components.Drawdown, 1e-9)

	want := 0.30*29 + 0.30*35 + 0.20*20 + 0.20*30
	assert.InDelta(t, want, rpt.Score, 1e-9)
	assert.Equal(t, LevelLow, rpt.Level)
}

func TestAggregateCarriesFactorsAndCorrelations(t *testing.T) {
	a := testAggregator(t)
	in := testInputs()
	rpt, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, rpt.Factors)
	assert.Equal(t, in.Factors.TotalVariance, rpt.Factors.TotalVariance)
	assert.Len(t, rpt.Factors.Factors, 2)
	require.NotNil(t, rpt.Correlations)
	assert.Equal(t, []string{"AAPL", "AGG"}, rpt.Correlations.Symbols)
	assert.InDelta(t, 0.2, rpt.Correlations.MaxOffDiagonal(), 1e-12)
}

func TestLevelBands(t *testing.T) {
	assert.Equal(t, LevelMinimal, levelFor(0))
	assert.Equal(t, LevelMinimal, levelFor(19.9))
	assert.Equal(t, LevelLow, levelFor(20))
	assert.Equal(t, LevelModerate, levelFor(40))
	assert.Equal(t, LevelHigh, levelFor(60))
	assert.Equal(t, LevelCritical, levelFor(80))
	assert.Equal(t, LevelCritical, levelFor(100))
}

func TestAggregateScoreSaturates(t *testing.T) {
	a := testAggregator(t)
	in := testInputs()
	in.VaR[metricsengine.MethodHistorical].VaR99 = 900_000 // far past the cap
	in.Stress[0].ImpactPct = -3.0
	in.Stress[1].ImpactPct = -3.0
	in.Liquidity.Score = 0
	in.Drawdown.MaxDrawdown = 0.99

	rpt, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)
	assert.LessOrEqual(t, rpt.Score, 100.0)
	assert.Equal(t, LevelCritical, rpt.Level)
}

func TestAggregateAllOrNothing(t *testing.T) {
	a := testAggregator(t)

	in := testInputs()
	in.VaR = nil
	_, err := a.Aggregate(context.Background(), in)
	assert.True(t, riskerrors.IsInvalidInput(err), "missing VaR")

	in = testInputs()
	in.Liquidity = nil
	_, err = a.Aggregate(context.Background(), in)
	assert.True(t, riskerrors.IsInvalidInput(err), "missing liquidity")

	in = testInputs()
	in.Factors = nil
	_, err = a.Aggregate(context.Background(), in)
	assert.True(t, riskerrors.IsInvalidInput(err), "missing factor analysis")

	in = testInputs()
	in.Correlations = nil
	_, err = a.Aggregate(context.Background(), in)
	assert.True(t, riskerrors.IsInvalidInput(err), "missing correlation matrix")

	in = testInputs()
	in.PortfolioValue = 0
	_, err = a.Aggregate(context.Background(), in)
	assert.True(t, riskerrors.IsInvalidInput(err), "bad portfolio value")
}

func TestAggregateRecommendations(t *testing.T) {
	a := testAggregator(t)
	in := testInputs()
	in.Stress[0].ImpactPct = -2.0 // stress subscore pegged at 100
	in.VaR[metricsengine.MethodParametric].Degraded = true
	in.VaR[metricsengine.MethodParametric].DegradedReason = "fit did not converge"
	in.Limits.Recommendations = []limits.Recommendation{
		{Priority: 1, Message: "reduce borrowed exposure to bring leverage back inside its limit"},
	}

	rpt, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)

	joined := ""
	for _, r := range rpt.Recommendations {
		joined += r + "\n"
	}
	assert.Contains(t, joined, "stress losses are outsized")
	assert.Contains(t, joined, "degraded")
	assert.Contains(t, joined, "reduce borrowed exposure")

	seen := make(map[string]bool)
	for _, r := range rpt.Recommendations {
		assert.False(t, seen[r], "duplicate recommendation")
		seen[r] = true
	}
}

func TestAggregateCancelled(t *testing.T) {
	a := testAggregator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Aggregate(ctx, testInputs())
	assert.ErrorIs(t, err, context.Canceled)
}
