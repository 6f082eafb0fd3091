// Package triggers manages the stop-loss/take-profit lifecycle. A trigger is
// created ACTIVE and moves to exactly one terminal state: TRIGGERED on fire,
// CANCELLED on request, or EXPIRED past its deadline. It never re-fires.
package triggers

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/metrics"
)

// Kind identifies the trigger variant.
type Kind string

const (
	KindStopFixed         Kind = "stop_fixed"
	KindStopTrailing      Kind = "stop_trailing"
	KindStopGuaranteed    Kind = "stop_guaranteed"
	KindTakeProfit        Kind = "take_profit"
	KindTakeProfitPartial Kind = "take_profit_partial"
)

// Status is the trigger lifecycle state. All states other than ACTIVE are
// terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// PartialLevel is one staged take-profit exit: at entry*(1+LevelPct), exit
// Fraction of the position.
type PartialLevel struct {
	LevelPct float64 `json:"level_pct"`
	Fraction float64 `json:"fraction"`
}

// Trigger is one protective order watched by the manager. Only the manager
// mutates it.
type Trigger struct {
	ID          uuid.UUID      `json:"id"`
	PositionID  string         `json:"position_id"`
	Symbol      string         `json:"symbol"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status"`
	Price       float64        `json:"price"`       // current trigger price
	EntryPrice  float64        `json:"entry_price"`
	TrailPct    float64        `json:"trail_pct,omitempty"`
	Levels      []PartialLevel `json:"levels,omitempty"`
	NextLevel   int            `json:"next_level,omitempty"`
	Version     uint64         `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

func (t *Trigger) role() string {
	switch t.Kind {
	case KindTakeProfit, KindTakeProfitPartial:
		return roleTP
	default:
		return roleStop
	}
}

// Event is emitted when a trigger fires. Fraction is 1.0 for full exits and
// the level fraction for staged take-profits.
type Event struct {
	TriggerID    uuid.UUID `json:"trigger_id"`
	PositionID   string    `json:"position_id"`
	Symbol       string    `json:"symbol"`
	Kind         Kind      `json:"kind"`
	TriggerPrice float64   `json:"trigger_price"`
	MarketPrice  float64   `json:"market_price"`
	Fraction     float64   `json:"fraction"`
	At           time.Time `json:"at"`
}

// Listener receives fired-trigger events for routing to the execution layer.
type Listener func(Event)

// StopOptions configures SetStopLoss. Distance is the fractional stop
// distance below entry for fixed and guaranteed stops; TrailPct overrides the
// configured default for trailing stops.
type StopOptions struct {
	Distance  float64
	TrailPct  float64
	ExpiresAt *time.Time
}

// TakeProfitOptions configures SetTakeProfit: either a single TargetPct above
// entry, or an ordered ladder of partial levels whose fractions sum to ~1.
type TakeProfitOptions struct {
	TargetPct float64
	Levels    []PartialLevel
	ExpiresAt *time.Time
}

// Manager owns the trigger store. It is the single writer: all mutation goes
// through Set/Cancel/CheckTriggers under the manager lock.
type Manager struct {
	store    *Store
	cfg      config.TriggersConfig
	logger   *zap.Logger
	listener Listener
	now      func() time.Time

	// mu guards the store, listener, and clock; CheckTriggers is the only
	// writer during normal operation.
	mu sync.Mutex
}

// NewManager creates a trigger manager with an empty store.
func NewManager(cfg config.TriggersConfig, logger *zap.Logger) *Manager {
	return &Manager{
		store:  NewStore(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetListener registers the execution-layer event sink.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// SetClock overrides the manager clock. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetStopLoss creates (or replaces) the protective stop for a position.
// Fixed stops sit at entry*(1-distance); trailing stops start at
// current*(1-trail) and only ever ratchet upward; guaranteed stops discount
// the fixed level by the configured premium, the cost of a guaranteed fill.
func (m *Manager) SetStopLoss(positionID, symbol string, entry, current float64, kind Kind, opts StopOptions) (*Trigger, error) {
	const op = "triggers.SetStopLoss"
	if err := validatePrices(op, entry, current); err != nil {
		return nil, err
	}

	var price float64
	trailPct := opts.TrailPct
	switch kind {
	case KindStopFixed:
		if opts.Distance <= 0 || opts.Distance >= 1 {
			return nil, riskerrors.NewInvalidInput(op, "stop distance must be in (0,1), got %f", opts.Distance)
		}
		price = entry * (1 - opts.Distance)
	case KindStopTrailing:
		if trailPct == 0 {
			trailPct = m.cfg.DefaultTrailPct
		}
		if trailPct <= 0 || trailPct >= 1 {
			return nil, riskerrors.NewInvalidInput(op, "trail pct must be in (0,1), got %f", trailPct)
		}
		price = current * (1 - trailPct)
	case KindStopGuaranteed:
		if opts.Distance <= 0 || opts.Distance >= 1 {
			return nil, riskerrors.NewInvalidInput(op, "stop distance must be in (0,1), got %f", opts.Distance)
		}
		price = entry * (1 - opts.Distance) * (1 - m.cfg.GuaranteedStopPremium)
	default:
		return nil, riskerrors.NewInvalidInput(op, "unknown stop kind %q", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Trigger{
		ID:         uuid.New(),
		PositionID: positionID,
		Symbol:     symbol,
		Kind:       kind,
		Status:     StatusActive,
		Price:      price,
		EntryPrice: entry,
		TrailPct:   trailPct,
		CreatedAt:  m.now(),
		ExpiresAt:  opts.ExpiresAt,
	}
	m.store.Put(t)
	m.logger.Info("stop-loss set",
		zap.String("position_id", positionID),
		zap.String("kind", string(kind)),
		zap.Float64("trigger_price", price))
	return t, nil
}

// SetTakeProfit creates (or replaces) the take-profit program for a position:
// a single target, or an ordered ladder of (level, fraction) pairs whose
// fractions must sum to ~1.0 for staged exits.
func (m *Manager) SetTakeProfit(positionID, symbol string, entry, current float64, opts TakeProfitOptions) (*Trigger, error) {
	const op = "triggers.SetTakeProfit"
	if err := validatePrices(op, entry, current); err != nil {
		return nil, err
	}

	t := &Trigger{
		ID:         uuid.New(),
		PositionID: positionID,
		Symbol:     symbol,
		Status:     StatusActive,
		EntryPrice: entry,
		CreatedAt:  m.now(),
		ExpiresAt:  opts.ExpiresAt,
	}

	if len(opts.Levels) > 0 {
		levels := make([]PartialLevel, len(opts.Levels))
		copy(levels, opts.Levels)
		sort.Slice(levels, func(i, j int) bool { return levels[i].LevelPct < levels[j].LevelPct })
		sum := 0.0
		for _, l := range levels {
			if l.LevelPct <= 0 || l.Fraction <= 0 {
				return nil, riskerrors.NewInvalidInput(op, "partial levels must have positive level and fraction")
			}
			sum += l.Fraction
		}
		if math.Abs(sum-1.0) > 0.01 {
			return nil, riskerrors.NewInvalidInput(op, "partial exit fractions sum to %f, expected ~1.0", sum)
		}
		t.Kind = KindTakeProfitPartial
		t.Levels = levels
		t.Price = entry * (1 + levels[0].LevelPct)
	} else {
		if opts.TargetPct <= 0 {
			return nil, riskerrors.NewInvalidInput(op, "target pct must be positive, got %f", opts.TargetPct)
		}
		t.Kind = KindTakeProfit
		t.Price = entry * (1 + opts.TargetPct)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Put(t)
	m.logger.Info("take-profit set",
		zap.String("position_id", positionID),
		zap.String("kind", string(t.Kind)),
		zap.Float64("trigger_price", t.Price))
	return t, nil
}

// Cancel moves every active trigger for the position to CANCELLED.
func (m *Manager) Cancel(positionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancelled := 0
	for _, role := range []string{roleStop, roleTP} {
		if t, ok := m.store.Get(positionID, role); ok && t.Status == StatusActive {
			t.Status = StatusCancelled
			t.Version++
			cancelled++
		}
	}
	if cancelled > 0 {
		m.logger.Info("triggers cancelled",
			zap.String("position_id", positionID),
			zap.Int("count", cancelled))
	}
	return cancelled
}

// Get returns the trigger in the position's stop or take-profit slot.
func (m *Manager) Get(positionID, role string) (*Trigger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(positionID, role)
}

// ActiveCount returns the number of triggers still active.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ActiveCount()
}

// CheckTriggers evaluates every active trigger against the tick prices.
// Trailing stops ratchet first, then fire checks run: a stop fires at
// price <= trigger, a take-profit at price >= trigger (long convention).
// Firing is one-way; a missing price skips only that trigger for this tick.
func (m *Manager) CheckTriggers(ctx context.Context, prices map[string]float64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var events []Event
	m.store.Scan(func(t *Trigger) bool {
		if t.Status != StatusActive {
			return true
		}
		if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
			t.Status = StatusExpired
			t.Version++
			return true
		}

		price, ok := prices[t.Symbol]
		if !ok {
			m.logger.Debug("no price for trigger symbol this tick",
				zap.String("symbol", t.Symbol),
				zap.String("position_id", t.PositionID))
			return true
		}
		if price <= 0 || math.IsNaN(price) {
			m.logger.Warn("ignoring bad tick price for trigger",
				zap.String("symbol", t.Symbol),
				zap.Float64("price", price))
			return true
		}

		switch t.Kind {
		case KindStopTrailing:
			// Ratchet: the stored stop only ever moves in the protective
			// direction for a long position.
			if newStop := price * (1 - t.TrailPct); newStop > t.Price {
				t.Price = newStop
				t.Version++
			}
			fallthrough
		case KindStopFixed, KindStopGuaranteed:
			if price <= t.Price {
				events = append(events, m.fire(t, price, 1.0, now))
			}
		case KindTakeProfit:
			if price >= t.Price {
				events = append(events, m.fire(t, price, 1.0, now))
			}
		case KindTakeProfitPartial:
			for t.NextLevel < len(t.Levels) {
				level := t.Levels[t.NextLevel]
				levelPrice := t.EntryPrice * (1 + level.LevelPct)
				if price < levelPrice {
					break
				}
				t.NextLevel++
				events = append(events, m.partialFire(t, price, level.Fraction, levelPrice, now))
			}
			if t.NextLevel >= len(t.Levels) {
				t.markTriggered(now)
			} else {
				t.Price = t.EntryPrice * (1 + t.Levels[t.NextLevel].LevelPct)
			}
		}
		return true
	})

	for _, ev := range events {
		metrics.TriggersFired.WithLabelValues(string(ev.Kind)).Inc()
		if m.listener != nil {
			m.listener(ev)
		}
	}
	return events, nil
}

func (m *Manager) fire(t *Trigger, marketPrice, fraction float64, now time.Time) Event {
	t.markTriggered(now)
	m.logger.Info("trigger fired",
		zap.String("position_id", t.PositionID),
		zap.String("kind", string(t.Kind)),
		zap.Float64("trigger_price", t.Price),
		zap.Float64("market_price", marketPrice))
	return Event{
		TriggerID:    t.ID,
		PositionID:   t.PositionID,
		Symbol:       t.Symbol,
		Kind:         t.Kind,
		TriggerPrice: t.Price,
		MarketPrice:  marketPrice,
		Fraction:     fraction,
		At:           now,
	}
}

func (m *Manager) partialFire(t *Trigger, marketPrice, fraction, levelPrice float64, now time.Time) Event {
	t.Version++
	m.logger.Info("partial take-profit level hit",
		zap.String("position_id", t.PositionID),
		zap.Float64("level_price", levelPrice),
		zap.Float64("fraction", fraction))
	return Event{
		TriggerID:    t.ID,
		PositionID:   t.PositionID,
		Symbol:       t.Symbol,
		Kind:         t.Kind,
		TriggerPrice: levelPrice,
		MarketPrice:  marketPrice,
		Fraction:     fraction,
		At:           now,
	}
}

func (t *Trigger) markTriggered(now time.Time) {
	if t.Status != StatusActive {
		return
	}
	t.Status = StatusTriggered
	at := now
	t.TriggeredAt = &at
	t.Version++
}

func validatePrices(op string, entry, current float64) error {
	if entry <= 0 || current <= 0 || math.IsNaN(entry) || math.IsNaN(current) {
		return riskerrors.NewInvalidInput(op, "entry and current prices must be positive finite numbers")
	}
	return nil
}
