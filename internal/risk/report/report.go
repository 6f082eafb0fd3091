// Package report aggregates the individual risk engine outputs into a single
// scored risk report. The score blends tail risk, stress impact, liquidity,
// and drawdown into a 0-100 scale, higher meaning riskier.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	"github.com/quantrisk/riskcore/internal/risk/factor"
	"github.com/quantrisk/riskcore/internal/risk/limits"
	"github.com/quantrisk/riskcore/internal/risk/liquidity"
	"github.com/quantrisk/riskcore/internal/risk/metricsengine"
	"github.com/quantrisk/riskcore/internal/risk/performance"
	"github.com/quantrisk/riskcore/internal/risk/stress"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/metrics"
	"github.com/quantrisk/riskcore/pkg/models"
)

// Level buckets the composite score into severity bands.
type Level string

const (
	LevelMinimal  Level = "MINIMAL"  // score < 20
	LevelLow      Level = "LOW"      // 20 <= score < 40
	LevelModerate Level = "MODERATE" // 40 <= score < 60
	LevelHigh     Level = "HIGH"     // 60 <= score < 80
	LevelCritical Level = "CRITICAL" // score >= 80
)

func levelFor(score float64) Level {
	switch {
	case score < 20:
		return LevelMinimal
	case score < 40:
		return LevelLow
	case score < 60:
		return LevelModerate
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Inputs carries the component results the aggregator scores or passes
// through. VaR is the full suite keyed by method; Stress holds every scenario
// outcome; Factors is the variance decomposition and Correlations the pairwise
// snapshot it was computed against. Nil components are an input error: the
// report is all-or-nothing.
type Inputs struct {
	PortfolioValue float64
	VaR            map[metricsengine.Method]*metricsengine.VaRResult
	Stress         []*stress.Result
	Factors        *factor.Analysis
	Correlations   *models.CorrelationMatrix
	Liquidity      *liquidity.Risk
	Drawdown       *performance.DrawdownResult
	Limits         *limits.Report
}

// RiskReport is the scored aggregate. It is immutable once returned;
// regeneration produces a new value.
type RiskReport struct {
	At              time.Time                                         `json:"at"`
	Score           float64                                           `json:"score"`
	Level           Level                                             `json:"level"`
	Components      ComponentScores                                   `json:"components"`
	VaR             map[metricsengine.Method]*metricsengine.VaRResult `json:"var"`
	Stress          []*stress.Result                                  `json:"stress"`
	Factors         *factor.Analysis                                  `json:"factors"`
	Correlations    *models.CorrelationMatrix                         `json:"correlations"`
	Liquidity       *liquidity.Risk                                   `json:"liquidity"`
	Drawdown        *performance.DrawdownResult                       `json:"drawdown"`
	Limits          *limits.Report                                    `json:"limits"`
	Recommendations []string                                          `json:"recommendations"`
}

// ComponentScores are the normalized 0-100 subscores before weighting.
type ComponentScores struct {
	VaR       float64 `json:"var"`
	Stress    float64 `json:"stress"`
	Liquidity float64 `json:"liquidity"`
	Drawdown  float64 `json:"drawdown"`
}

// Aggregator combines engine outputs into RiskReports.
type Aggregator struct {
	cfg    config.ReportConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator builds an aggregator from validated configuration.
func NewAggregator(cfg config.ReportConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, logger: logger, now: time.Now}
}

// SetClock injects a deterministic clock for tests.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Weights of the composite score. Tail risk and stress dominate; liquidity
// and drawdown split the remainder.
const (
	weightVaR       = 0.30
	weightStress    = 0.30
	weightLiquidity = 0.20
	weightDrawdown  = 0.20
)

// Aggregate scores the inputs and assembles the report. Every component must
// be present; a partial report would understate risk without saying so.
func (a *Aggregator) Aggregate(ctx context.Context, in Inputs) (*RiskReport, error) {
	const op = "report.Aggregate"
	start := a.now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case in.PortfolioValue <= 0:
		return nil, riskerrors.NewInvalidInput(op, "portfolio value must be positive")
	case len(in.VaR) == 0:
		return nil, riskerrors.NewInvalidInput(op, "missing VaR results")
	case len(in.Stress) == 0:
		return nil, riskerrors.NewInvalidInput(op, "missing stress results")
	case in.Factors == nil:
		return nil, riskerrors.NewInvalidInput(op, "missing factor analysis")
	case in.Correlations == nil:
		return nil, riskerrors.NewInvalidInput(op, "missing correlation matrix")
	case in.Liquidity == nil:
		return nil, riskerrors.NewInvalidInput(op, "missing liquidity assessment")
	case in.Drawdown == nil:
		return nil, riskerrors.NewInvalidInput(op, "missing drawdown result")
	case in.Limits == nil:
		return nil, riskerrors.NewInvalidInput(op, "missing limit report")
	}

	comps := ComponentScores{
		VaR:       a.varScore(in),
		Stress:    a.stressScore(in),
		Liquidity: 100 - clamp(in.Liquidity.Score, 0, 100),
		Drawdown:  normalize(in.Drawdown.MaxDrawdown, a.cfg.DrawdownCap),
	}
	score := weightVaR*comps.VaR +
		weightStress*comps.Stress +
		weightLiquidity*comps.Liquidity +
		weightDrawdown*comps.Drawdown

	rpt := &RiskReport{
		At:              start,
		Score:           score,
		Level:           levelFor(score),
		Components:      comps,
		VaR:             in.VaR,
		Stress:          in.Stress,
		Factors:         in.Factors,
		Correlations:    in.Correlations,
		Liquidity:       in.Liquidity,
		Drawdown:        in.Drawdown,
		Limits:          in.Limits,
		Recommendations: a.recommend(in, comps),
	}

	metrics.RiskScore.Set(score)
	metrics.ReportLatency.Observe(a.now().Sub(start).Seconds())
	a.logger.Info("risk report aggregated",
		zap.Float64("score", score),
		zap.String("level", string(rpt.Level)))
	return rpt, nil
}

// varScore averages VaR99 across methods as a fraction of portfolio value
// and maps it onto 0-100 against the configured cap.
func (a *Aggregator) varScore(in Inputs) float64 {
	sum := 0.0
	for _, r := range in.VaR {
		sum += r.VaR99
	}
	avgPct := sum / float64(len(in.VaR)) / in.PortfolioValue
	return normalize(avgPct, a.cfg.VaRCapPct)
}

// stressScore averages the absolute scenario impact fractions against the
// configured cap.
func (a *Aggregator) stressScore(in Inputs) float64 {
	sum := 0.0
	for _, r := range in.Stress {
		pct := r.ImpactPct
		if pct < 0 {
			pct = -pct
		}
		sum += pct
	}
	avgPct := sum / float64(len(in.Stress))
	return normalize(avgPct, a.cfg.StressCapPct)
}

// normalize maps value onto [0,100] where ceiling and above score 100.
func normalize(value, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return clamp(value/ceiling*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Recommendation thresholds on the component subscores.
const adviceThreshold = 60.0

// recommend produces threshold-keyed advice, deduplicated and stable-ordered.
// Limit-level recommendations are folded in behind the component advice.
func (a *Aggregator) recommend(in Inputs, comps ComponentScores) []string {
	seen := make(map[string]bool)
	var recs []string
	add := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			recs = append(recs, msg)
		}
	}

	if comps.VaR >= adviceThreshold {
		add("tail risk is elevated: reduce gross exposure or hedge the largest contributors")
	}
	if comps.Stress >= adviceThreshold {
		add("stress losses are outsized: add downside protection for the worst scenarios")
	}
	if comps.Liquidity >= adviceThreshold {
		add("book liquidity is poor: shift toward assets with deeper markets")
	}
	if comps.Drawdown >= adviceThreshold {
		add("drawdown is near its cap: cut position sizes until the curve recovers")
	}
	for _, r := range in.VaR {
		if r.Degraded {
			add(fmt.Sprintf("%s VaR is degraded (%s): treat its estimate with caution", r.Method, r.DegradedReason))
		}
	}

	sort.Strings(recs)
	limitRecs := make([]string, 0, len(in.Limits.Recommendations))
	for _, lr := range in.Limits.Recommendations {
		if !seen[lr.Message] {
			seen[lr.Message] = true
			limitRecs = append(limitRecs, lr.Message)
		}
	}
	return append(recs, limitRecs...)
}
