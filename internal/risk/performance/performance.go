// Package performance computes drawdown, R-multiple, and risk-adjusted
// return analytics over realized equity curves and trade logs.
package performance

import (
	"math"
	"sort"

	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

const tradingDaysPerYear = 252

// DrawdownResult reports the deepest peak-to-trough decline of an equity
// curve. RecoverySteps counts steps from the trough until equity first
// re-exceeds the pre-drawdown peak; nil when the curve never recovers.
type DrawdownResult struct {
	MaxDrawdown   float64 `json:"max_drawdown"`
	PeakIndex     int     `json:"peak_index"`
	TroughIndex   int     `json:"trough_index"`
	RecoverySteps *int    `json:"recovery_steps,omitempty"`
}

// MaxDrawdown tracks the running peak and returns the maximum drawdown with
// its recovery time.
func MaxDrawdown(equity []float64) (*DrawdownResult, error) {
	const op = "performance.MaxDrawdown"
	if len(equity) < 2 {
		return nil, riskerrors.NewInvalidInput(op, "equity curve needs at least 2 points, got %d", len(equity))
	}
	for i, v := range equity {
		if math.IsNaN(v) || v <= 0 {
			return nil, riskerrors.NewInvalidInput(op, "equity curve value at index %d is not a positive number", i)
		}
	}

	res := &DrawdownResult{}
	peak := equity[0]
	peakIdx := 0
	for i, v := range equity {
		if v > peak {
			peak = v
			peakIdx = i
		}
		dd := (peak - v) / peak
		if dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
			res.PeakIndex = peakIdx
			res.TroughIndex = i
		}
	}

	if res.MaxDrawdown > 0 {
		ddPeak := equity[res.PeakIndex]
		for i := res.TroughIndex + 1; i < len(equity); i++ {
			if equity[i] > ddPeak {
				steps := i - res.TroughIndex
				res.RecoverySteps = &steps
				break
			}
		}
	}
	return res, nil
}

// Trade is one closed trade with its protective stop at entry.
type Trade struct {
	EntryPrice float64
	StopPrice  float64
	ExitPrice  float64
	Size       float64
}

// RSummary aggregates trade outcomes in R-multiples (profit as a multiple of
// the amount risked at entry).
type RSummary struct {
	Trades     int     `json:"trades"`
	WinRate    float64 `json:"win_rate"`
	AvgWinR    float64 `json:"avg_win_r"`
	AvgLossR   float64 `json:"avg_loss_r"`
	Expectancy float64 `json:"expectancy"` // winrate*avgWin + (1-winrate)*avgLoss
	RValues    []float64 `json:"r_values"`
}

// RMultiples converts each trade's PnL into an R-multiple against its
// risk-at-entry |entry-stop|*size and aggregates win rate and expectancy.
func RMultiples(trades []Trade) (*RSummary, error) {
	const op = "performance.RMultiples"
	if len(trades) == 0 {
		return nil, riskerrors.NewInvalidInput(op, "no trades supplied")
	}

	summary := &RSummary{RValues: make([]float64, 0, len(trades))}
	winSum, lossSum := 0.0, 0.0
	wins, losses := 0, 0

	for i, t := range trades {
		risk := math.Abs(t.EntryPrice-t.StopPrice) * t.Size
		if risk <= 0 {
			return nil, riskerrors.NewInvalidInput(op, "trade %d has zero risk at entry", i)
		}
		pnl := (t.ExitPrice - t.EntryPrice) * t.Size
		r := pnl / risk
		summary.RValues = append(summary.RValues, r)
		if r > 0 {
			winSum += r
			wins++
		} else {
			lossSum += r
			losses++
		}
	}

	summary.Trades = len(trades)
	summary.WinRate = float64(wins) / float64(len(trades))
	if wins > 0 {
		summary.AvgWinR = winSum / float64(wins)
	}
	if losses > 0 {
		summary.AvgLossR = lossSum / float64(losses)
	}
	summary.Expectancy = summary.WinRate*summary.AvgWinR + (1-summary.WinRate)*summary.AvgLossR
	return summary, nil
}

// RiskAdjusted holds the ratio suite. Ratios that would divide by zero are
// reported as zero, except Omega which saturates when no downside exists.
type RiskAdjusted struct {
	Sharpe    float64 `json:"sharpe"`
	Sortino   float64 `json:"sortino"`
	Calmar    float64 `json:"calmar"`
	Omega     float64 `json:"omega"`
	TailRatio float64 `json:"tail_ratio"`
}

// RiskAdjustedMetrics computes Sharpe, Sortino, Calmar, Omega, and the tail
// ratio from a daily return series and an annual risk-free rate.
func RiskAdjustedMetrics(returns []float64, riskFreeRate float64) (*RiskAdjusted, error) {
	const op = "performance.RiskAdjustedMetrics"
	if len(returns) < 2 {
		return nil, riskerrors.NewInvalidInput(op, "return series needs at least 2 points, got %d", len(returns))
	}
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, riskerrors.NewInvalidInput(op, "return at index %d is not finite", i)
		}
	}

	dailyRF := riskFreeRate / tradingDaysPerYear
	n := float64(len(returns))

	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	meanR := sum / n
	meanExcess := meanR - dailyRF

	variance := 0.0
	downside := 0.0
	for _, r := range returns {
		d := r - meanR
		variance += d * d
		if excess := r - dailyRF; excess < 0 {
			downside += excess * excess
		}
	}
	std := math.Sqrt(variance / (n - 1))
	downsideDev := math.Sqrt(downside / n)

	m := &RiskAdjusted{}
	if std > 0 {
		m.Sharpe = meanExcess / std * math.Sqrt(tradingDaysPerYear)
	}
	if downsideDev > 0 {
		m.Sortino = meanExcess / downsideDev * math.Sqrt(tradingDaysPerYear)
	}

	// Calmar needs the drawdown of the compounded equity path.
	equity := make([]float64, len(returns)+1)
	equity[0] = 1
	for i, r := range returns {
		equity[i+1] = equity[i] * (1 + r)
	}
	if dd, err := MaxDrawdown(equity); err == nil && dd.MaxDrawdown > 0 {
		m.Calmar = meanR * tradingDaysPerYear / dd.MaxDrawdown
	}

	up, down := 0.0, 0.0
	for _, r := range returns {
		if r > dailyRF {
			up += r - dailyRF
		} else {
			down += dailyRF - r
		}
	}
	if down > 0 {
		m.Omega = up / down
	} else if up > 0 {
		m.Omega = math.MaxFloat64
	}

	p95 := percentileOf(returns, 95)
	p5 := percentileOf(returns, 5)
	if p5 != 0 {
		m.TailRatio = math.Abs(p95) / math.Abs(p5)
	}
	return m, nil
}

func percentileOf(xs []float64, q float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
