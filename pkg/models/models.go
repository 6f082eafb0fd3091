// Package models holds the shared domain types exchanged between the risk
// engines and their collaborators. All values arrive as already-fetched
// snapshots; nothing in this package performs I/O.
package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass classifies a position for stress scenario shock lookup.
type AssetClass string

const (
	AssetClassEquity     AssetClass = "equity"
	AssetClassBond       AssetClass = "bond"
	AssetClassCommodity  AssetClass = "commodity"
	AssetClassCrypto     AssetClass = "crypto"
	AssetClassRealEstate AssetClass = "real_estate"
	AssetClassCash       AssetClass = "cash"
)

// Side is the direction of a proposed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is a single portfolio holding.
type Position struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	Value      decimal.Decimal `json:"value"`
	Sector     string          `json:"sector"`
	AssetClass AssetClass      `json:"asset_class"`
}

// Weight returns the position's share of the given portfolio value.
// The weight is derived on demand and never stored.
func (p Position) Weight(portfolioValue decimal.Decimal) decimal.Decimal {
	if portfolioValue.IsZero() {
		return decimal.Zero
	}
	return p.Value.Div(portfolioValue)
}

// Portfolio is a snapshot of current holdings and account equity.
type Portfolio struct {
	Positions []Position      `json:"positions"`
	Equity    decimal.Decimal `json:"equity"`
	Borrowed  decimal.Decimal `json:"borrowed"`
}

// GrossValue returns the sum of absolute position values.
func (pf *Portfolio) GrossValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range pf.Positions {
		total = total.Add(p.Value.Abs())
	}
	return total
}

// PositionBySymbol returns the holding for symbol, if any.
func (pf *Portfolio) PositionBySymbol(symbol string) (Position, bool) {
	for _, p := range pf.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// SectorValue returns the summed absolute value of positions in the sector.
func (pf *Portfolio) SectorValue(sector string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range pf.Positions {
		if p.Sector == sector {
			total = total.Add(p.Value.Abs())
		}
	}
	return total
}

// MarketData carries the per-symbol market state consumed by the risk engines.
type MarketData struct {
	Symbol             string  `json:"symbol"`
	Price              float64 `json:"price"`
	BidAskSpread       float64 `json:"bid_ask_spread"`         // fraction of mid
	AvgDailyVolumeUSD  float64 `json:"avg_daily_volume_usd"`   // average daily dollar volume
	Volatility         float64 `json:"volatility"`             // annualized, fraction
	MaxCorrelation     float64 `json:"max_correlation"`        // max pairwise corr vs rest of book
}

// CorrelationMatrix is a symmetric pairwise correlation snapshot.
type CorrelationMatrix struct {
	Symbols []string    `json:"symbols"`
	Values  [][]float64 `json:"values"`
}

// MaxOffDiagonal returns the largest absolute pairwise correlation.
func (cm *CorrelationMatrix) MaxOffDiagonal() float64 {
	if cm == nil {
		return 0
	}
	maxCorr := 0.0
	for i := range cm.Values {
		for j := range cm.Values[i] {
			if i == j {
				continue
			}
			if v := math.Abs(cm.Values[i][j]); v > maxCorr {
				maxCorr = v
			}
		}
	}
	return maxCorr
}

// MarketSnapshot is the per-tick market state fed to trigger and breaker
// evaluation. It is immutable once constructed.
type MarketSnapshot struct {
	At                 time.Time             `json:"at"`
	Data               map[string]MarketData `json:"data"`
	IndexVolatility    float64               `json:"index_volatility"`
	BaselineVolatility float64               `json:"baseline_volatility"`
	DailyReturn        float64               `json:"daily_return"` // portfolio daily return, losses negative
	Correlations       *CorrelationMatrix    `json:"correlations,omitempty"`
}

// Prices extracts the last-price map used by trigger evaluation.
func (ms *MarketSnapshot) Prices() map[string]float64 {
	prices := make(map[string]float64, len(ms.Data))
	for sym, md := range ms.Data {
		prices[sym] = md.Price
	}
	return prices
}

// TradeProposal is an order submitted for pre-trade checks.
type TradeProposal struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Sector     string          `json:"sector"`
	AssetClass AssetClass      `json:"asset_class"`
}

// Notional returns the proposal's dollar value.
func (tp TradeProposal) Notional() decimal.Decimal {
	return tp.Quantity.Mul(tp.Price)
}
