// Package limits enforces pre-trade position limits and produces the limit
// utilization report. Hard limits block a trade; soft limits log warnings and
// let it proceed. Hard versus soft comes from an explicit per-limit flag,
// never inferred.
package limits

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	"github.com/quantrisk/riskcore/internal/risk/breakers"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/metrics"
	"github.com/quantrisk/riskcore/pkg/models"
)

// LimitType is a closed enum of configured limit kinds. Threshold lookups are
// keyed by this enum, never by string matching.
type LimitType string

const (
	LimitConcentration       LimitType = "concentration"
	LimitRiskBudget          LimitType = "risk_budget"
	LimitLeverage            LimitType = "leverage"
	LimitSectorConcentration LimitType = "sector_concentration"
	LimitVolatility          LimitType = "volatility"
	LimitCorrelation         LimitType = "correlation"

	// LimitCircuitBreaker marks a halt imposed by a triggered circuit
	// breaker. It is a violation marker only, never a configurable
	// threshold limit.
	LimitCircuitBreaker LimitType = "circuit_breaker"
)

var knownLimitTypes = map[LimitType]bool{
	LimitConcentration:       true,
	LimitRiskBudget:          true,
	LimitLeverage:            true,
	LimitSectorConcentration: true,
	LimitVolatility:          true,
	LimitCorrelation:         true,
}

// PositionLimit is one configured limit. CurrentValue is mutated only by
// report generation; outside callers never write it.
type PositionLimit struct {
	Type         LimitType       `json:"type"`
	Threshold    decimal.Decimal `json:"threshold"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Hard         bool            `json:"hard"`
}

// Violation describes one exceeded limit.
type Violation struct {
	Limit     LimitType       `json:"limit"`
	Hard      bool            `json:"hard"`
	Current   decimal.Decimal `json:"current"`
	Threshold decimal.Decimal `json:"threshold"`
	Message   string          `json:"message"`
}

// TradeDecision is the synchronous allow/deny answer on the trade path.
type TradeDecision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"` // hard, blocking
	Warnings   []Violation `json:"warnings"`   // soft, informational
}

// MarginRequirement is the margin block of the limit report.
type MarginRequirement struct {
	InitialMargin     decimal.Decimal `json:"initial_margin"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin"`
	CurrentMargin     decimal.Decimal `json:"current_margin"` // equity / gross positions
	ExcessMargin      decimal.Decimal `json:"excess_margin"`
	MarginCallValue   decimal.Decimal `json:"margin_call_value"` // portfolio value triggering a call
	LiquidationValue  decimal.Decimal `json:"liquidation_value"` // portfolio value exhausting equity
}

// Recommendation is one prioritized piece of limit advice. Lower priority
// numbers surface first.
type Recommendation struct {
	Priority int    `json:"priority"`
	Message  string `json:"message"`
}

// Report snapshots every configured limit's utilization.
type Report struct {
	At              time.Time         `json:"at"`
	Limits          []PositionLimit   `json:"limits"`
	Violations      []Violation       `json:"violations"`
	Warnings        []Violation       `json:"warnings"`
	Margin          MarginRequirement `json:"margin"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// Enforcer evaluates trade proposals against the configured limits, the risk
// budget, and the circuit breaker registry.
type Enforcer struct {
	mu       sync.Mutex // guards CurrentValue writes during report generation
	limits   map[LimitType]*PositionLimit
	order    []LimitType
	budget   *RiskBudget
	margin   config.MarginConfig
	registry *breakers.Registry
	logger   *zap.Logger
}

// NewEnforcer builds an enforcer from validated configuration. Unknown limit
// types are a construction-time error.
func NewEnforcer(cfg config.LimitsConfig, registry *breakers.Registry, logger *zap.Logger) (*Enforcer, error) {
	e := &Enforcer{
		limits:   make(map[LimitType]*PositionLimit, len(cfg.Limits)),
		budget:   NewRiskBudget(cfg.RiskBudget),
		margin:   cfg.Margin,
		registry: registry,
		logger:   logger,
	}
	for _, lc := range cfg.Limits {
		lt := LimitType(lc.Type)
		if !knownLimitTypes[lt] {
			return nil, riskerrors.NewConfigError("limits", "unknown limit type %q", lc.Type)
		}
		e.limits[lt] = &PositionLimit{
			Type:      lt,
			Threshold: decimal.NewFromFloat(lc.Threshold),
			Hard:      lc.Hard,
		}
		e.order = append(e.order, lt)
	}
	return e, nil
}

// Budget exposes the risk budget handle.
func (e *Enforcer) Budget() *RiskBudget { return e.budget }

// CheckTrade runs the pre-trade gate. Hard violations block; soft violations
// are returned as warnings and the trade proceeds. A missing market-data
// entry for the proposal's symbol skips only the market-dependent checks.
func (e *Enforcer) CheckTrade(ctx context.Context, proposal models.TradeProposal, portfolio *models.Portfolio, market map[string]models.MarketData) (*TradeDecision, error) {
	const op = "limits.CheckTrade"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if proposal.Quantity.Sign() <= 0 || proposal.Price.Sign() <= 0 {
		return nil, riskerrors.NewInvalidInput(op, "proposal quantity and price must be positive")
	}

	decision := &TradeDecision{Allowed: true}
	record := func(v Violation) {
		if v.Hard {
			decision.Allowed = false
			decision.Violations = append(decision.Violations, v)
		} else {
			decision.Warnings = append(decision.Warnings, v)
		}
	}

	// A triggered breaker halts all new trades regardless of direction.
	if e.registry != nil && e.registry.AnyTriggered() {
		record(Violation{
			Limit:   LimitCircuitBreaker,
			Hard:    true,
			Message: "trading halted: circuit breaker triggered",
		})
		metrics.PreTradeChecks.WithLabelValues("blocked").Inc()
		return decision, nil
	}

	// Exposure-reducing sells pass the remaining accumulation checks.
	if proposal.Side == models.SideSell {
		metrics.PreTradeChecks.WithLabelValues("allowed").Inc()
		return decision, nil
	}

	notional := proposal.Notional()
	gross := portfolio.GrossValue()
	projectedGross := gross.Add(notional)

	if l, ok := e.limits[LimitConcentration]; ok && projectedGross.Sign() > 0 {
		existing := decimal.Zero
		if pos, found := portfolio.PositionBySymbol(proposal.Symbol); found {
			existing = pos.Value.Abs()
		}
		concentration := existing.Add(notional).Div(projectedGross)
		if concentration.GreaterThan(l.Threshold) {
			record(Violation{
				Limit: LimitConcentration, Hard: l.Hard,
				Current: concentration, Threshold: l.Threshold,
				Message: fmt.Sprintf("position concentration %s exceeds limit %s",
					concentration.StringFixed(4), l.Threshold.StringFixed(4)),
			})
		}
	}

	if l, ok := e.limits[LimitLeverage]; ok && portfolio.Equity.Sign() > 0 {
		leverage := projectedGross.Div(portfolio.Equity)
		if leverage.GreaterThan(l.Threshold) {
			record(Violation{
				Limit: LimitLeverage, Hard: l.Hard,
				Current: leverage, Threshold: l.Threshold,
				Message: fmt.Sprintf("portfolio leverage %s exceeds limit %s",
					leverage.StringFixed(2), l.Threshold.StringFixed(2)),
			})
		}
	}

	if l, ok := e.limits[LimitSectorConcentration]; ok && projectedGross.Sign() > 0 && proposal.Sector != "" {
		sector := portfolio.SectorValue(proposal.Sector).Add(notional).Div(projectedGross)
		if sector.GreaterThan(l.Threshold) {
			record(Violation{
				Limit: LimitSectorConcentration, Hard: l.Hard,
				Current: sector, Threshold: l.Threshold,
				Message: fmt.Sprintf("sector %q concentration %s exceeds limit %s",
					proposal.Sector, sector.StringFixed(4), l.Threshold.StringFixed(4)),
			})
		}
	}

	md, haveMarket := market[proposal.Symbol]
	if !haveMarket {
		// One bad data point must never mask risk elsewhere: skip only the
		// market-dependent checks for this symbol.
		e.logger.Warn("market data missing for proposal, skipping market-dependent checks",
			zap.String("symbol", proposal.Symbol))
	} else {
		if l, ok := e.limits[LimitRiskBudget]; ok {
			dailyVol := md.Volatility / math.Sqrt(252)
			riskEstimate := notional.Mul(decimal.NewFromFloat(dailyVol))
			remaining := e.budget.Remaining()
			if riskEstimate.GreaterThan(remaining) || riskEstimate.GreaterThan(e.budget.PerPosition) {
				record(Violation{
					Limit: LimitRiskBudget, Hard: l.Hard,
					Current: riskEstimate, Threshold: remaining,
					Message: fmt.Sprintf("estimated trade risk %s exceeds remaining risk budget %s",
						riskEstimate.StringFixed(2), remaining.StringFixed(2)),
				})
			}
		}

		if l, ok := e.limits[LimitVolatility]; ok {
			vol := decimal.NewFromFloat(md.Volatility)
			if vol.GreaterThan(l.Threshold) {
				record(Violation{
					Limit: LimitVolatility, Hard: l.Hard,
					Current: vol, Threshold: l.Threshold,
					Message: fmt.Sprintf("%s volatility %s exceeds limit %s",
						proposal.Symbol, vol.StringFixed(2), l.Threshold.StringFixed(2)),
				})
			}
		}

		if l, ok := e.limits[LimitCorrelation]; ok {
			corr := decimal.NewFromFloat(md.MaxCorrelation)
			if corr.GreaterThan(l.Threshold) {
				record(Violation{
					Limit: LimitCorrelation, Hard: l.Hard,
					Current: corr, Threshold: l.Threshold,
					Message: fmt.Sprintf("%s correlation %s exceeds limit %s",
						proposal.Symbol, corr.StringFixed(2), l.Threshold.StringFixed(2)),
				})
			}
		}
	}

	outcome := "allowed"
	if !decision.Allowed {
		outcome = "blocked"
	}
	metrics.PreTradeChecks.WithLabelValues(outcome).Inc()
	return decision, nil
}
