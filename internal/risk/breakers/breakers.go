// Package breakers implements threshold-based trading circuit breakers with
// cooldown and optional auto-reset. Any triggered breaker halts all new
// trades system-wide until reset.
package breakers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/metrics"
)

// Condition identifies what a breaker monitors.
type Condition string

const (
	ConditionDailyLoss            Condition = "daily_loss"
	ConditionVolatilitySpike      Condition = "volatility_spike"
	ConditionCorrelationBreakdown Condition = "correlation_breakdown"
)

// State is the breaker lifecycle state.
type State int32

const (
	// StateActive - normal operation, trading allowed
	StateActive State = iota
	// StateTriggered - condition breached, trading halted
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Reading is the per-tick market state a breaker evaluates against.
type Reading struct {
	DailyLoss       float64 // magnitude of the day's loss, positive fraction
	VolatilityRatio float64 // current / baseline volatility
	MaxCorrelation  float64 // max absolute pairwise correlation
}

// Breaker is one configured circuit breaker. It persists for the registry's
// lifetime and is only mutated by Evaluate and Reset.
type Breaker struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Condition     Condition     `json:"condition"`
	Threshold     float64       `json:"threshold"`
	CurrentValue  float64       `json:"current_value"`
	Cooldown      time.Duration `json:"cooldown"`
	AutoReset     bool          `json:"auto_reset"`
	LastTriggered time.Time     `json:"last_triggered"`

	state State
}

// State returns the breaker's current state.
func (b *Breaker) State() State { return b.state }

// Event records a breaker state transition.
type Event struct {
	BreakerID uuid.UUID `json:"breaker_id"`
	Name      string    `json:"name"`
	Condition Condition `json:"condition"`
	State     State     `json:"state"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// Status is a read-only snapshot of one breaker for the monitoring layer.
type Status struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Condition     Condition `json:"condition"`
	State         string    `json:"state"`
	Threshold     float64   `json:"threshold"`
	CurrentValue  float64   `json:"current_value"`
	AutoReset     bool      `json:"auto_reset"`
	LastTriggered time.Time `json:"last_triggered"`
}

// Registry owns the breaker list. It is passed by handle so multiple engine
// instances stay independent; Evaluate is the single writer.
type Registry struct {
	mu       sync.RWMutex
	breakers []*Breaker
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry builds breakers from validated configuration.
func NewRegistry(cfgs []config.BreakerConfig, logger *zap.Logger) (*Registry, error) {
	r := &Registry{logger: logger, now: time.Now}
	for _, c := range cfgs {
		cond := Condition(c.Condition)
		switch cond {
		case ConditionDailyLoss, ConditionVolatilitySpike, ConditionCorrelationBreakdown:
		default:
			return nil, riskerrors.NewConfigError("breakers", "unknown condition %q", c.Condition)
		}
		r.breakers = append(r.breakers, &Breaker{
			ID:        uuid.New(),
			Name:      c.Name,
			Condition: cond,
			Threshold: c.Threshold,
			Cooldown:  c.Cooldown.D(),
			AutoReset: c.AutoReset,
			state:     StateActive,
		})
	}
	return r, nil
}

// SetClock overrides the registry clock. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Evaluate runs every breaker against the reading and returns the state
// transitions that occurred. A triggered breaker returns to active only after
// its cooldown elapses, and only when auto-reset is enabled and the condition
// has cleared; otherwise it stays triggered until a manual Reset.
func (r *Registry) Evaluate(ctx context.Context, reading Reading) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var events []Event
	for _, b := range r.breakers {
		value := conditionValue(b.Condition, reading)
		b.CurrentValue = value

		switch b.state {
		case StateTriggered:
			if b.AutoReset && now.Sub(b.LastTriggered) >= b.Cooldown && value < b.Threshold {
				b.state = StateActive
				r.logger.Info("circuit breaker auto-reset after cooldown",
					zap.String("name", b.Name),
					zap.String("condition", string(b.Condition)))
				events = append(events, r.eventFor(b, value, now))
			}
		case StateActive:
			if value >= b.Threshold {
				b.state = StateTriggered
				b.LastTriggered = now
				metrics.BreakerTrips.WithLabelValues(string(b.Condition)).Inc()
				r.logger.Warn("circuit breaker triggered, trading halted",
					zap.String("name", b.Name),
					zap.String("condition", string(b.Condition)),
					zap.Float64("value", value),
					zap.Float64("threshold", b.Threshold))
				events = append(events, r.eventFor(b, value, now))
			}
		}
	}
	return events, nil
}

func (r *Registry) eventFor(b *Breaker, value float64, at time.Time) Event {
	return Event{
		BreakerID: b.ID,
		Name:      b.Name,
		Condition: b.Condition,
		State:     b.state,
		Value:     value,
		Threshold: b.Threshold,
		At:        at,
	}
}

func conditionValue(c Condition, reading Reading) float64 {
	switch c {
	case ConditionDailyLoss:
		return reading.DailyLoss
	case ConditionVolatilitySpike:
		return reading.VolatilityRatio
	case ConditionCorrelationBreakdown:
		return reading.MaxCorrelation
	default:
		return 0
	}
}

// AnyTriggered reports whether any breaker is currently halting trading.
func (r *Registry) AnyTriggered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		if b.state == StateTriggered {
			return true
		}
	}
	return false
}

// Reset manually returns a breaker to active regardless of cooldown.
func (r *Registry) Reset(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		if b.ID == id {
			b.state = StateActive
			r.logger.Info("circuit breaker manually reset", zap.String("name", b.Name))
			return nil
		}
	}
	return riskerrors.NewInvalidInput("breakers.Reset", "no breaker with id %s", id)
}

// Snapshot returns the current state of every breaker.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, Status{
			ID:            b.ID,
			Name:          b.Name,
			Condition:     b.Condition,
			State:         b.state.String(),
			Threshold:     b.Threshold,
			CurrentValue:  b.CurrentValue,
			AutoReset:     b.AutoReset,
			LastTriggered: b.LastTriggered,
		})
	}
	return out
}
