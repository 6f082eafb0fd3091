package liquidity

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/models"
)

func testAssessor(t *testing.T) *Assessor {
	t.Helper()
	return NewAssessor(config.LiquidityConfig{
		ParticipationRate: 0.20,
		ImpactCoefficient: 0.10,
	}, zaptest.NewLogger(t))
}

func TestAssessSinglePosition(t *testing.T) {
	a := testAssessor(t)
	positions := []models.Position{{Symbol: "SPY", Value: decimal.NewFromInt(1_000_000)}}
	market := map[string]models.MarketData{
		"SPY": {Symbol: "SPY", BidAskSpread: 0.0002, AvgDailyVolumeUSD: 10_000_000},
	}

	risk, err := a.Assess(positions, market)
	require.NoError(t, err)
	require.Len(t, risk.Positions, 1)

	pl := risk.Positions[0]
	assert.InDelta(t, 200, pl.SpreadCost, 1e-9)                         // 1M * 2bp
	assert.InDelta(t, 0.5, pl.DaysToLiquidate, 1e-12)                   // 1M / (0.2 * 10M)
	assert.InDelta(t, 0.10*math.Sqrt(0.1), pl.MarketImpact, 1e-12)      // coeff * sqrt(value/ADV)
	assert.InDelta(t, 100/(1+0.5+0.0002*100), risk.Score, 1e-9)
}

func TestAssessSkipsMissingMarketData(t *testing.T) {
	a := testAssessor(t)
	positions := []models.Position{
		{Symbol: "SPY", Value: decimal.NewFromInt(100_000)},
		{Symbol: "OTC", Value: decimal.NewFromInt(50_000)},
	}
	market := map[string]models.MarketData{
		"SPY": {Symbol: "SPY", BidAskSpread: 0.0002, AvgDailyVolumeUSD: 10_000_000},
	}

	risk, err := a.Assess(positions, market)
	require.NoError(t, err)
	assert.Equal(t, []string{"OTC"}, risk.SkippedSymbols)
	assert.Len(t, risk.Positions, 1)
	assert.Positive(t, risk.Score)
}

func TestAssessValueWeightedAggregation(t *testing.T) {
	a := testAssessor(t)
	positions := []models.Position{
		{Symbol: "BIG", Value: decimal.NewFromInt(900_000)},
		{Symbol: "SMALL", Value: decimal.NewFromInt(100_000)},
	}
	market := map[string]models.MarketData{
		"BIG":   {Symbol: "BIG", BidAskSpread: 0.001, AvgDailyVolumeUSD: 1_000_000},
		"SMALL": {Symbol: "SMALL", BidAskSpread: 0.0001, AvgDailyVolumeUSD: 100_000_000},
	}

	risk, err := a.Assess(positions, market)
	require.NoError(t, err)

	daysBig := 900_000.0 / (0.2 * 1_000_000)
	daysSmall := 100_000.0 / (0.2 * 100_000_000)
	want := (900_000*daysBig + 100_000*daysSmall) / 1_000_000
	assert.InDelta(t, want, risk.WeightedDays, 1e-9)
	// Illiquid book: days dominate, score collapses toward zero.
	assert.Less(t, risk.Score, 25.0)
}

func TestAssessZeroVolumeDegenerate(t *testing.T) {
	a := testAssessor(t)
	positions := []models.Position{{Symbol: "HALTED", Value: decimal.NewFromInt(10_000)}}
	market := map[string]models.MarketData{
		"HALTED": {Symbol: "HALTED", BidAskSpread: 0.01, AvgDailyVolumeUSD: 0},
	}

	risk, err := a.Assess(positions, market)
	require.NoError(t, err)
	assert.Zero(t, risk.Positions[0].DaysToLiquidate)
	assert.Zero(t, risk.Positions[0].MarketImpact)
	assert.InDelta(t, 100, risk.Positions[0].SpreadCost, 1e-9)
}

func TestAssessFullySkippedBook(t *testing.T) {
	a := testAssessor(t)
	positions := []models.Position{{Symbol: "GHOST", Value: decimal.NewFromInt(10_000)}}
	risk, err := a.Assess(positions, map[string]models.MarketData{})
	require.NoError(t, err)
	assert.InDelta(t, 100, risk.Score, 1e-12)
}

func TestAssessNoPositions(t *testing.T) {
	a := testAssessor(t)
	_, err := a.Assess(nil, map[string]models.MarketData{})
	assert.True(t, riskerrors.IsInvalidInput(err))
}
