// Package config loads and validates the risk engine configuration.
// Configuration is immutable after Load: engines receive validated structs at
// construction and are never reconfigured in place.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/models"
)

// Duration wraps time.Duration so YAML values like "1h" or "30m" decode
// through time.ParseDuration.
type Duration time.Duration

// D returns the underlying time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return riskerrors.NewConfigError("duration", "cannot parse %q: %v", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root configuration for the risk engine.
type Config struct {
	LogLevel  string           `mapstructure:"log_level" yaml:"log_level"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Stress    StressConfig     `mapstructure:"stress" yaml:"stress"`
	Liquidity LiquidityConfig  `mapstructure:"liquidity" yaml:"liquidity"`
	Sizing    SizingConfig     `mapstructure:"sizing" yaml:"sizing"`
	Limits    LimitsConfig     `mapstructure:"limits" yaml:"limits"`
	Triggers  TriggersConfig   `mapstructure:"triggers" yaml:"triggers"`
	Breakers  []BreakerConfig  `mapstructure:"breakers" yaml:"breakers"`
	Report    ReportConfig     `mapstructure:"report" yaml:"report"`
}

// MetricsConfig controls the VaR/CVaR suite.
type MetricsConfig struct {
	MinObservations    int     `mapstructure:"min_observations" yaml:"min_observations" validate:"gte=10"`
	BootstrapResamples int     `mapstructure:"bootstrap_resamples" yaml:"bootstrap_resamples" validate:"gt=0"`
	MonteCarloDraws    int     `mapstructure:"monte_carlo_draws" yaml:"monte_carlo_draws" validate:"gt=0"`
	Workers            int     `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	EWMALambda         float64 `mapstructure:"ewma_lambda" yaml:"ewma_lambda" validate:"gt=0,lt=1"`
	Seed               int64   `mapstructure:"seed" yaml:"seed"`
}

// ScenarioConfig is one named stress scenario. Shock fractions are keyed by
// asset class and are negative for adverse moves.
type ScenarioConfig struct {
	Key              string             `mapstructure:"key" yaml:"key" validate:"required"`
	Name             string             `mapstructure:"name" yaml:"name" validate:"required"`
	Historical       bool               `mapstructure:"historical" yaml:"historical"`
	Shocks           map[string]float64 `mapstructure:"shocks" yaml:"shocks" validate:"required,min=1"`
	VolMultiplier    float64            `mapstructure:"vol_multiplier" yaml:"vol_multiplier" validate:"gte=1"`
	CorrelationShock float64            `mapstructure:"correlation_shock" yaml:"correlation_shock" validate:"gte=0,lte=1"`
	Probability      float64            `mapstructure:"probability" yaml:"probability" validate:"gte=0,lte=1"`
}

// StressConfig holds the scenario table.
type StressConfig struct {
	Scenarios []ScenarioConfig `mapstructure:"scenarios" yaml:"scenarios" validate:"required,min=1,dive"`
}

// LiquidityConfig controls liquidation cost estimation.
type LiquidityConfig struct {
	ParticipationRate float64 `mapstructure:"participation_rate" yaml:"participation_rate" validate:"gt=0,lte=1"`
	ImpactCoefficient float64 `mapstructure:"impact_coefficient" yaml:"impact_coefficient" validate:"gt=0"`
}

// SizingConfig controls position sizing.
type SizingConfig struct {
	PerPositionRiskCap float64 `mapstructure:"per_position_risk_cap" yaml:"per_position_risk_cap" validate:"gt=0,lte=1"`
	EnableVolScaling   bool    `mapstructure:"enable_vol_scaling" yaml:"enable_vol_scaling"`
	TargetVolatility   float64 `mapstructure:"target_volatility" yaml:"target_volatility" validate:"gt=0"`
	KellyCap           float64 `mapstructure:"kelly_cap" yaml:"kelly_cap" validate:"gt=0,lte=1"`
	MaxPositionValue   float64 `mapstructure:"max_position_value" yaml:"max_position_value" validate:"gt=0"`
	MinPositionValue   float64 `mapstructure:"min_position_value" yaml:"min_position_value" validate:"gte=0"`
}

// LimitConfig is one configured position limit with an explicit hard/soft flag.
type LimitConfig struct {
	Type      string  `mapstructure:"type" yaml:"type" validate:"required"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" validate:"gt=0"`
	Hard      bool    `mapstructure:"hard" yaml:"hard"`
}

// RiskBudgetConfig allocates the portfolio risk budget in dollars.
type RiskBudgetConfig struct {
	Total       float64 `mapstructure:"total" yaml:"total" validate:"gt=0"`
	PerPosition float64 `mapstructure:"per_position" yaml:"per_position" validate:"gt=0"`
	Daily       float64 `mapstructure:"daily" yaml:"daily" validate:"gt=0"`
	Monthly     float64 `mapstructure:"monthly" yaml:"monthly" validate:"gt=0"`
}

// MarginConfig holds margin rates used by the limit report.
type MarginConfig struct {
	InitialRate     float64 `mapstructure:"initial_rate" yaml:"initial_rate" validate:"gt=0,lt=1"`
	MaintenanceRate float64 `mapstructure:"maintenance_rate" yaml:"maintenance_rate" validate:"gt=0,lt=1"`
}

// LimitsConfig is the pre-trade limit configuration.
type LimitsConfig struct {
	Limits     []LimitConfig    `mapstructure:"limits" yaml:"limits" validate:"required,min=1,dive"`
	RiskBudget RiskBudgetConfig `mapstructure:"risk_budget" yaml:"risk_budget"`
	Margin     MarginConfig     `mapstructure:"margin" yaml:"margin"`
}

// TriggersConfig controls stop-loss/take-profit behavior.
type TriggersConfig struct {
	GuaranteedStopPremium float64 `mapstructure:"guaranteed_stop_premium" yaml:"guaranteed_stop_premium" validate:"gte=0,lt=1"`
	DefaultTrailPct       float64 `mapstructure:"default_trail_pct" yaml:"default_trail_pct" validate:"gt=0,lt=1"`
}

// BreakerConfig configures one trading circuit breaker.
type BreakerConfig struct {
	Name      string   `mapstructure:"name" yaml:"name" validate:"required"`
	Condition string   `mapstructure:"condition" yaml:"condition" validate:"required,oneof=daily_loss volatility_spike correlation_breakdown"`
	Threshold float64  `mapstructure:"threshold" yaml:"threshold" validate:"gt=0"`
	Cooldown  Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"gt=0"`
	AutoReset bool     `mapstructure:"auto_reset" yaml:"auto_reset"`
}

// ReportConfig holds normalization caps for the aggregate risk score.
// A sub-metric at or beyond its cap maps to a normalized score of 100.
type ReportConfig struct {
	VaRCapPct    float64 `mapstructure:"var_cap_pct" yaml:"var_cap_pct" validate:"gt=0"`
	StressCapPct float64 `mapstructure:"stress_cap_pct" yaml:"stress_cap_pct" validate:"gt=0"`
	DrawdownCap  float64 `mapstructure:"drawdown_cap" yaml:"drawdown_cap" validate:"gt=0,lte=1"`
}

var validKnownAssetClasses = map[string]bool{
	string(models.AssetClassEquity):     true,
	string(models.AssetClassBond):       true,
	string(models.AssetClassCommodity):  true,
	string(models.AssetClassCrypto):     true,
	string(models.AssetClassRealEstate): true,
	string(models.AssetClassCash):       true,
}

// Validate runs struct-tag validation plus cross-field checks that tags
// cannot express. It must pass before any engine is constructed.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return riskerrors.NewConfigError("root", "validation failed: %v", err)
	}

	seen := make(map[string]bool, len(c.Stress.Scenarios))
	for _, sc := range c.Stress.Scenarios {
		if seen[sc.Key] {
			return riskerrors.NewConfigError("stress.scenarios", "duplicate scenario key %q", sc.Key)
		}
		seen[sc.Key] = true
		for class := range sc.Shocks {
			if !validKnownAssetClasses[class] {
				return riskerrors.NewConfigError("stress.scenarios", "scenario %q shocks unknown asset class %q", sc.Key, class)
			}
		}
	}

	if c.Sizing.MinPositionValue >= c.Sizing.MaxPositionValue {
		return riskerrors.NewConfigError("sizing", "min_position_value %.2f must be below max_position_value %.2f",
			c.Sizing.MinPositionValue, c.Sizing.MaxPositionValue)
	}

	if c.Limits.Margin.MaintenanceRate >= c.Limits.Margin.InitialRate {
		return riskerrors.NewConfigError("limits.margin", "maintenance_rate %.3f must be below initial_rate %.3f",
			c.Limits.Margin.MaintenanceRate, c.Limits.Margin.InitialRate)
	}

	if c.Limits.RiskBudget.PerPosition > c.Limits.RiskBudget.Total {
		return riskerrors.NewConfigError("limits.risk_budget", "per_position budget exceeds total budget")
	}

	limitTypes := make(map[string]bool, len(c.Limits.Limits))
	for _, l := range c.Limits.Limits {
		if limitTypes[l.Type] {
			return riskerrors.NewConfigError("limits.limits", "duplicate limit type %q", l.Type)
		}
		limitTypes[l.Type] = true
	}

	breakerNames := make(map[string]bool, len(c.Breakers))
	for _, b := range c.Breakers {
		if breakerNames[b.Name] {
			return riskerrors.NewConfigError("breakers", "duplicate breaker name %q", b.Name)
		}
		breakerNames[b.Name] = true
	}

	return nil
}
