// Package stress applies named shock scenarios to portfolio positions.
// The scenario table is validated immutable configuration; asset-class
// classification is an injected capability, never hard-coded here.
package stress

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/models"
)

// AssetClassifier resolves a symbol to its asset class. Implementations are
// supplied by the caller; a classification failure skips only that position.
type AssetClassifier interface {
	Classify(symbol string) (models.AssetClass, error)
}

// PositionImpact is the dollar impact of a scenario on one position.
type PositionImpact struct {
	Symbol string  `json:"symbol"`
	Impact float64 `json:"impact"`
}

// Result is the outcome of one stress scenario. TotalImpact is exactly the
// sum of the per-position impacts.
type Result struct {
	ScenarioKey     string           `json:"scenario_key"`
	ScenarioName    string           `json:"scenario_name"`
	Historical      bool             `json:"historical"`
	Probability     float64          `json:"probability"`
	TotalImpact     float64          `json:"total_impact"`
	ImpactPct       float64          `json:"impact_pct"`
	PositionImpacts []PositionImpact `json:"position_impacts"`
	RecoveryDays    float64          `json:"recovery_days"`
	SkippedSymbols  []string         `json:"skipped_symbols,omitempty"`
}

// Engine runs the configured scenario table against a position snapshot.
type Engine struct {
	scenarios []config.ScenarioConfig
	logger    *zap.Logger
}

// NewEngine creates a stress engine from a validated scenario table.
func NewEngine(cfg config.StressConfig, logger *zap.Logger) (*Engine, error) {
	if len(cfg.Scenarios) == 0 {
		return nil, riskerrors.NewConfigError("stress.scenarios", "scenario table is empty")
	}
	return &Engine{scenarios: cfg.Scenarios, logger: logger}, nil
}

// RunStressTests applies every scenario to the positions. Scenarios run in
// parallel; results are reassembled in table order. A failed classification
// for one position skips only that position and is recorded on the result.
func (e *Engine) RunStressTests(ctx context.Context, positions []models.Position, classifier AssetClassifier) ([]*Result, error) {
	const op = "stress.RunStressTests"
	if classifier == nil {
		return nil, riskerrors.NewInvalidInput(op, "classifier must not be nil")
	}

	totalValue := 0.0
	for _, p := range positions {
		totalValue += p.Value.InexactFloat64()
	}

	results := make([]*Result, len(e.scenarios))
	var wg sync.WaitGroup
	for i, sc := range e.scenarios {
		wg.Add(1)
		go func(i int, sc config.ScenarioConfig) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			results[i] = e.runScenario(sc, positions, totalValue, classifier)
		}(i, sc)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) runScenario(sc config.ScenarioConfig, positions []models.Position, totalValue float64, classifier AssetClassifier) *Result {
	res := &Result{
		ScenarioKey:     sc.Key,
		ScenarioName:    sc.Name,
		Historical:      sc.Historical,
		Probability:     sc.Probability,
		PositionImpacts: make([]PositionImpact, 0, len(positions)),
	}

	for _, p := range positions {
		class := p.AssetClass
		if class == "" {
			resolved, err := classifier.Classify(p.Symbol)
			if err != nil {
				e.logger.Warn("asset classification failed, skipping position in scenario",
					zap.String("scenario", sc.Key),
					zap.String("symbol", p.Symbol),
					zap.Error(err))
				res.SkippedSymbols = append(res.SkippedSymbols, p.Symbol)
				continue
			}
			class = resolved
		}

		shock, ok := sc.Shocks[string(class)]
		if !ok {
			// Unshocked asset classes (e.g. cash in some tables) contribute zero.
			shock = 0
		}
		impact := p.Value.InexactFloat64() * shock
		res.PositionImpacts = append(res.PositionImpacts, PositionImpact{Symbol: p.Symbol, Impact: impact})
		res.TotalImpact += impact
	}

	if totalValue != 0 {
		res.ImpactPct = res.TotalImpact / totalValue
	}
	res.RecoveryDays = math.Abs(res.ImpactPct) * 100 * sc.VolMultiplier
	return res
}
