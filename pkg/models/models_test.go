package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPortfolioGrossValue(t *testing.T) {
	pf := &Portfolio{Positions: []Position{
		{Symbol: "SPY", Value: decimal.NewFromInt(100_000)},
		{Symbol: "SHORT", Value: decimal.NewFromInt(-40_000)},
	}}
	assert.True(t, pf.GrossValue().Equal(decimal.NewFromInt(140_000)))
}

func TestPositionWeight(t *testing.T) {
	p := Position{Value: decimal.NewFromInt(25_000)}
	w := p.Weight(decimal.NewFromInt(100_000))
	f, _ := w.Float64()
	assert.InDelta(t, 0.25, f, 1e-12)

	assert.True(t, p.Weight(decimal.Zero).IsZero())
}

func TestSectorValue(t *testing.T) {
	pf := &Portfolio{Positions: []Position{
		{Symbol: "AAPL", Value: decimal.NewFromInt(10_000), Sector: "tech"},
		{Symbol: "MSFT", Value: decimal.NewFromInt(-5_000), Sector: "tech"},
		{Symbol: "XOM", Value: decimal.NewFromInt(7_000), Sector: "energy"},
	}}
	assert.True(t, pf.SectorValue("tech").Equal(decimal.NewFromInt(15_000)))
	assert.True(t, pf.SectorValue("unknown").IsZero())
}

func TestCorrelationMatrixMaxOffDiagonal(t *testing.T) {
	cm := &CorrelationMatrix{
		Symbols: []string{"A", "B"},
		Values: [][]float64{
			{1.0, -0.85},
			{-0.85, 1.0},
		},
	}
	assert.InDelta(t, 0.85, cm.MaxOffDiagonal(), 1e-12)

	var nilMatrix *CorrelationMatrix
	assert.Zero(t, nilMatrix.MaxOffDiagonal())
}

func TestTradeProposalNotional(t *testing.T) {
	tp := TradeProposal{Quantity: decimal.NewFromInt(40), Price: decimal.NewFromFloat(102.50)}
	assert.True(t, tp.Notional().Equal(decimal.NewFromInt(4_100)))
}

func TestMarketSnapshotPrices(t *testing.T) {
	ms := &MarketSnapshot{Data: map[string]MarketData{
		"SPY": {Symbol: "SPY", Price: 500},
		"AGG": {Symbol: "AGG", Price: 100},
	}}
	prices := ms.Prices()
	assert.Equal(t, map[string]float64{"SPY": 500, "AGG": 100}, prices)
}
