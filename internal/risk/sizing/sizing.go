// Package sizing computes position sizes with fixed-fractional risk,
// optional volatility scaling, and fractional-Kelly capping.
package sizing

import (
	"math"

	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

// maxVolScale bounds how far low asset volatility can scale a position up.
const maxVolScale = 2.0

// Adjustment names a sizing modification that was applied.
type Adjustment string

const (
	AdjustmentVolScaled   Adjustment = "volatility_scaled"
	AdjustmentKellyCapped Adjustment = "kelly_capped"
	AdjustmentMaxValue    Adjustment = "max_value_capped"
	AdjustmentDustZeroed  Adjustment = "below_minimum_zeroed"
)

// KellyInputs supplies the win statistics for Kelly sizing.
type KellyInputs struct {
	WinRate      float64 // p, in (0,1)
	WinLossRatio float64 // b, average win / average loss
}

// Request is one sizing request. Volatility and Kelly are optional.
type Request struct {
	AccountValue float64
	RiskPerTrade float64
	EntryPrice   float64
	StopPrice    float64
	TargetPrice  float64      // optional, for risk/reward reporting
	Volatility   float64      // optional annualized asset volatility
	Kelly        *KellyInputs // optional
}

// Result is the sizing outcome. A result below the configured minimum
// position value is zeroed entirely: no dust positions.
type Result struct {
	Shares          float64      `json:"shares"`
	PositionValue   float64      `json:"position_value"`
	RiskAmount      float64      `json:"risk_amount"`
	RiskPct         float64      `json:"risk_pct"`
	KellyFraction   float64      `json:"kelly_fraction,omitempty"`
	RiskRewardRatio float64      `json:"risk_reward_ratio,omitempty"`
	Adjustments     []Adjustment `json:"adjustments,omitempty"`
}

// Sizer sizes positions against validated configuration.
type Sizer struct {
	cfg    config.SizingConfig
	logger *zap.Logger
}

// NewSizer creates a position sizer.
func NewSizer(cfg config.SizingConfig, logger *zap.Logger) *Sizer {
	return &Sizer{cfg: cfg, logger: logger}
}

// Size computes the position size for the request.
func (s *Sizer) Size(req Request) (*Result, error) {
	const op = "sizing.Size"
	if req.AccountValue <= 0 {
		return nil, riskerrors.NewInvalidInput(op, "account value must be positive, got %f", req.AccountValue)
	}
	if req.RiskPerTrade <= 0 {
		return nil, riskerrors.NewInvalidInput(op, "risk per trade must be positive, got %f", req.RiskPerTrade)
	}
	if req.EntryPrice <= 0 || req.StopPrice <= 0 {
		return nil, riskerrors.NewInvalidInput(op, "entry and stop prices must be positive")
	}
	if req.EntryPrice == req.StopPrice {
		return nil, riskerrors.NewInvalidInput(op, "entry and stop prices must differ")
	}

	res := &Result{}
	riskPerShare := math.Abs(req.EntryPrice - req.StopPrice)
	riskBudget := math.Min(req.RiskPerTrade, req.AccountValue*s.cfg.PerPositionRiskCap)
	shares := riskBudget / riskPerShare

	if req.Volatility > 0 && s.cfg.EnableVolScaling {
		scale := math.Min(s.cfg.TargetVolatility/req.Volatility, maxVolScale)
		shares *= scale
		res.Adjustments = append(res.Adjustments, AdjustmentVolScaled)
	}

	if req.Kelly != nil {
		f, err := kellyFraction(req.Kelly, s.cfg.KellyCap)
		if err != nil {
			return nil, err
		}
		res.KellyFraction = f
		kellyShares := f * req.AccountValue / req.EntryPrice
		if kellyShares < shares {
			shares = kellyShares
			res.Adjustments = append(res.Adjustments, AdjustmentKellyCapped)
		}
	}

	value := shares * req.EntryPrice
	if value > s.cfg.MaxPositionValue {
		shares = s.cfg.MaxPositionValue / req.EntryPrice
		value = s.cfg.MaxPositionValue
		res.Adjustments = append(res.Adjustments, AdjustmentMaxValue)
	}
	if value < s.cfg.MinPositionValue {
		s.logger.Debug("position below minimum value, zeroed",
			zap.Float64("value", value),
			zap.Float64("minimum", s.cfg.MinPositionValue))
		return &Result{Adjustments: append(res.Adjustments, AdjustmentDustZeroed), KellyFraction: res.KellyFraction}, nil
	}

	res.Shares = shares
	res.PositionValue = value
	res.RiskAmount = shares * riskPerShare
	res.RiskPct = res.RiskAmount / req.AccountValue
	if req.TargetPrice > 0 {
		reward := math.Abs(req.TargetPrice - req.EntryPrice)
		res.RiskRewardRatio = reward / riskPerShare
	}
	return res, nil
}

// kellyFraction computes f = (p*b - q)/b clamped to [0, cap]. The cap keeps
// sizing at fractional Kelly for safety.
func kellyFraction(in *KellyInputs, cap float64) (float64, error) {
	const op = "sizing.kellyFraction"
	if in.WinRate <= 0 || in.WinRate >= 1 {
		return 0, riskerrors.NewInvalidInput(op, "win rate must be in (0,1), got %f", in.WinRate)
	}
	if in.WinLossRatio <= 0 {
		return 0, riskerrors.NewInvalidInput(op, "win/loss ratio must be positive, got %f", in.WinLossRatio)
	}
	f := (in.WinRate*in.WinLossRatio - (1 - in.WinRate)) / in.WinLossRatio
	if f < 0 {
		f = 0
	}
	if f > cap {
		f = cap
	}
	return f, nil
}
