package limits

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/pkg/models"
)

var one = decimal.NewFromInt(1)

// GenerateLimitReport snapshots every configured limit's current utilization
// against the given portfolio, recomputes margin requirements, and returns
// prioritized recommendations for anything in breach. CurrentValue on the
// stored limits is updated here and nowhere else.
func (e *Enforcer) GenerateLimitReport(ctx context.Context, portfolio *models.Portfolio, market map[string]models.MarketData) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gross := portfolio.GrossValue()
	current := e.currentValues(portfolio, market, gross)

	e.mu.Lock()
	defer e.mu.Unlock()
	report := &Report{At: time.Now()}
	for _, lt := range e.order {
		l := e.limits[lt]
		l.CurrentValue = current[lt]
		report.Limits = append(report.Limits, *l)
		if l.CurrentValue.GreaterThan(l.Threshold) {
			v := Violation{
				Limit: lt, Hard: l.Hard,
				Current: l.CurrentValue, Threshold: l.Threshold,
				Message: fmt.Sprintf("%s at %s against limit %s",
					lt, l.CurrentValue.StringFixed(4), l.Threshold.StringFixed(4)),
			}
			if l.Hard {
				report.Violations = append(report.Violations, v)
			} else {
				report.Warnings = append(report.Warnings, v)
			}
		}
	}

	report.Margin = e.marginRequirement(portfolio, gross)
	report.Recommendations = e.recommend(report)

	e.logger.Info("limit report generated",
		zap.Int("violations", len(report.Violations)),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

// currentValues computes the live utilization for each limit type. Symbols
// without market data are skipped for the market-dependent limits so a data
// gap in one position never hides the rest of the book.
func (e *Enforcer) currentValues(portfolio *models.Portfolio, market map[string]models.MarketData, gross decimal.Decimal) map[LimitType]decimal.Decimal {
	current := map[LimitType]decimal.Decimal{
		LimitRiskBudget: e.budget.Utilization(),
	}

	maxConcentration := decimal.Zero
	sectorTotals := make(map[string]decimal.Decimal)
	maxVol := decimal.Zero
	maxCorr := decimal.Zero
	for _, p := range portfolio.Positions {
		if gross.Sign() > 0 {
			if w := p.Value.Abs().Div(gross); w.GreaterThan(maxConcentration) {
				maxConcentration = w
			}
			if p.Sector != "" {
				sectorTotals[p.Sector] = sectorTotals[p.Sector].Add(p.Value.Abs())
			}
		}
		md, ok := market[p.Symbol]
		if !ok {
			e.logger.Debug("market data missing for position in limit report",
				zap.String("symbol", p.Symbol))
			continue
		}
		if v := decimal.NewFromFloat(md.Volatility); v.GreaterThan(maxVol) {
			maxVol = v
		}
		if c := decimal.NewFromFloat(md.MaxCorrelation); c.GreaterThan(maxCorr) {
			maxCorr = c
		}
	}
	current[LimitConcentration] = maxConcentration
	current[LimitVolatility] = maxVol
	current[LimitCorrelation] = maxCorr

	maxSector := decimal.Zero
	for _, v := range sectorTotals {
		if w := v.Div(gross); w.GreaterThan(maxSector) {
			maxSector = w
		}
	}
	current[LimitSectorConcentration] = maxSector

	if portfolio.Equity.Sign() > 0 {
		current[LimitLeverage] = gross.Div(portfolio.Equity)
	} else {
		current[LimitLeverage] = decimal.Zero
	}
	return current
}

// marginRequirement derives margin levels from the gross book and account
// equity. MarginCallValue and LiquidationValue are the portfolio values at
// which a margin call fires and equity is exhausted, given current borrowing.
func (e *Enforcer) marginRequirement(portfolio *models.Portfolio, gross decimal.Decimal) MarginRequirement {
	initRate := decimal.NewFromFloat(e.margin.InitialRate)
	maintRate := decimal.NewFromFloat(e.margin.MaintenanceRate)

	m := MarginRequirement{
		InitialMargin:     gross.Mul(initRate),
		MaintenanceMargin: gross.Mul(maintRate),
	}
	if gross.Sign() > 0 {
		m.CurrentMargin = portfolio.Equity.Div(gross)
	}
	m.ExcessMargin = portfolio.Equity.Sub(m.MaintenanceMargin)
	if portfolio.Borrowed.Sign() > 0 {
		// Equity = V - borrowed; a call fires when equity/V < maintenance rate,
		// i.e. V < borrowed / (1 - maintenance rate). Equity hits zero at
		// V = borrowed.
		m.MarginCallValue = portfolio.Borrowed.Div(one.Sub(maintRate))
		m.LiquidationValue = portfolio.Borrowed
	}
	return m
}

var limitAdvice = map[LimitType]struct {
	priority int
	message  string
}{
	LimitLeverage:            {1, "reduce borrowed exposure to bring leverage back inside its limit"},
	LimitRiskBudget:          {2, "pause new risk-taking until consumed risk budget is released"},
	LimitConcentration:       {3, "trim the largest position to restore single-name concentration headroom"},
	LimitSectorConcentration: {4, "rebalance away from the most concentrated sector"},
	LimitCorrelation:         {5, "diversify holdings to lower pairwise correlation in the book"},
	LimitVolatility:          {6, "reduce size in the highest-volatility positions"},
}

// recommend converts breaches into prioritized, deduplicated advice. Margin
// pressure outranks every limit breach.
func (e *Enforcer) recommend(report *Report) []Recommendation {
	seen := make(map[string]bool)
	var recs []Recommendation
	add := func(priority int, message string) {
		if seen[message] {
			return
		}
		seen[message] = true
		recs = append(recs, Recommendation{Priority: priority, Message: message})
	}

	if report.Margin.ExcessMargin.Sign() < 0 {
		add(0, "equity is below maintenance margin: deleverage immediately")
	}
	for _, v := range report.Violations {
		if a, ok := limitAdvice[v.Limit]; ok {
			add(a.priority, a.message)
		}
	}
	for _, w := range report.Warnings {
		if a, ok := limitAdvice[w.Limit]; ok {
			add(a.priority, a.message)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority < recs[j].Priority
		}
		return recs[i].Message < recs[j].Message
	})
	return recs
}
