package limits

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantrisk/riskcore/internal/config"
)

// RiskBudget tracks dollar risk consumption against the configured total and
// the daily/monthly windows. All amounts are dollars of 1-day risk. Windows
// roll over lazily on the next Consume or Remaining call.
type RiskBudget struct {
	Total       decimal.Decimal
	PerPosition decimal.Decimal
	Daily       decimal.Decimal
	Monthly     decimal.Decimal

	mu              sync.Mutex
	consumed        decimal.Decimal
	dailyConsumed   decimal.Decimal
	monthlyConsumed decimal.Decimal
	day             time.Time
	month           time.Month

	now func() time.Time
}

// NewRiskBudget builds a budget tracker from configuration.
func NewRiskBudget(cfg config.RiskBudgetConfig) *RiskBudget {
	return &RiskBudget{
		Total:       decimal.NewFromFloat(cfg.Total),
		PerPosition: decimal.NewFromFloat(cfg.PerPosition),
		Daily:       decimal.NewFromFloat(cfg.Daily),
		Monthly:     decimal.NewFromFloat(cfg.Monthly),
		now:         time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (b *RiskBudget) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

func (b *RiskBudget) rollLocked() {
	t := b.now()
	day := t.Truncate(24 * time.Hour)
	if !day.Equal(b.day) {
		b.day = day
		b.dailyConsumed = decimal.Zero
	}
	if t.Month() != b.month {
		b.month = t.Month()
		b.monthlyConsumed = decimal.Zero
	}
}

// Consume records amount dollars of risk taken on. Negative amounts are
// ignored; use Release to free budget.
func (b *RiskBudget) Consume(amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.consumed = b.consumed.Add(amount)
	b.dailyConsumed = b.dailyConsumed.Add(amount)
	b.monthlyConsumed = b.monthlyConsumed.Add(amount)
}

// Release frees amount dollars of previously consumed budget, clamping at
// zero. Window counters are not unwound: realized risk in a window stays
// counted against that window.
func (b *RiskBudget) Release(amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumed = b.consumed.Sub(amount)
	if b.consumed.Sign() < 0 {
		b.consumed = decimal.Zero
	}
}

// Remaining returns the unconsumed budget, bounded by the tightest of the
// total, daily, and monthly windows.
func (b *RiskBudget) Remaining() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	remaining := b.Total.Sub(b.consumed)
	if d := b.Daily.Sub(b.dailyConsumed); d.LessThan(remaining) {
		remaining = d
	}
	if m := b.Monthly.Sub(b.monthlyConsumed); m.LessThan(remaining) {
		remaining = m
	}
	if remaining.Sign() < 0 {
		return decimal.Zero
	}
	return remaining
}

// Consumed returns the total consumed budget.
func (b *RiskBudget) Consumed() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumed
}

// Utilization returns consumed/total as a fraction.
func (b *RiskBudget) Utilization() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Total.Sign() <= 0 {
		return decimal.Zero
	}
	return b.consumed.Div(b.Total)
}
