package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

// defaultYAML is the built-in configuration, including the canonical stress
// scenario table. File and environment overrides are merged on top of it.
const defaultYAML = `
log_level: info
metrics:
  min_observations: 30
  bootstrap_resamples: 1000
  monte_carlo_draws: 10000
  workers: 4
  ewma_lambda: 0.94
  seed: 0
stress:
  scenarios:
    - key: crisis_2008
      name: "2008 Financial Crisis"
      historical: true
      shocks: {equity: -0.50, bond: -0.10, commodity: -0.40, crypto: -0.70, real_estate: -0.45, cash: 0.0}
      vol_multiplier: 3.0
      correlation_shock: 0.90
      probability: 0.010
    - key: covid_crash
      name: "COVID-19 Crash"
      historical: true
      shocks: {equity: -0.34, bond: 0.05, commodity: -0.30, crypto: -0.50, real_estate: -0.25, cash: 0.0}
      vol_multiplier: 2.5
      correlation_shock: 0.85
      probability: 0.020
    - key: dotcom_bust
      name: "Dot-Com Bust"
      historical: true
      shocks: {equity: -0.45, bond: 0.10, commodity: -0.10, crypto: -0.60, real_estate: -0.05, cash: 0.0}
      vol_multiplier: 2.0
      correlation_shock: 0.70
      probability: 0.010
    - key: black_monday
      name: "Black Monday"
      historical: true
      shocks: {equity: -0.22, bond: 0.02, commodity: -0.05, crypto: -0.30, real_estate: -0.02, cash: 0.0}
      vol_multiplier: 4.0
      correlation_shock: 0.80
      probability: 0.005
    - key: inflation_spike
      name: "Inflation Spike"
      historical: false
      shocks: {equity: -0.15, bond: -0.25, commodity: 0.30, crypto: -0.20, real_estate: -0.10, cash: -0.05}
      vol_multiplier: 1.5
      correlation_shock: 0.60
      probability: 0.050
    - key: deflation
      name: "Deflationary Spiral"
      historical: false
      shocks: {equity: -0.20, bond: 0.15, commodity: -0.35, crypto: -0.40, real_estate: -0.30, cash: 0.02}
      vol_multiplier: 1.8
      correlation_shock: 0.65
      probability: 0.020
    - key: geopolitical_crisis
      name: "Geopolitical Crisis"
      historical: false
      shocks: {equity: -0.20, bond: 0.05, commodity: 0.25, crypto: -0.25, real_estate: -0.10, cash: 0.0}
      vol_multiplier: 2.2
      correlation_shock: 0.75
      probability: 0.030
    - key: tech_collapse
      name: "Tech Sector Collapse"
      historical: false
      shocks: {equity: -0.40, bond: 0.08, commodity: -0.05, crypto: -0.65, real_estate: -0.05, cash: 0.0}
      vol_multiplier: 2.5
      correlation_shock: 0.70
      probability: 0.015
liquidity:
  participation_rate: 0.20
  impact_coefficient: 0.10
sizing:
  per_position_risk_cap: 0.02
  enable_vol_scaling: true
  target_volatility: 0.15
  kelly_cap: 0.25
  max_position_value: 250000
  min_position_value: 1000
limits:
  limits:
    - {type: concentration, threshold: 0.20, hard: true}
    - {type: risk_budget, threshold: 1.0, hard: true}
    - {type: leverage, threshold: 2.0, hard: true}
    - {type: sector_concentration, threshold: 0.35, hard: false}
    - {type: volatility, threshold: 0.60, hard: false}
    - {type: correlation, threshold: 0.90, hard: false}
  risk_budget:
    total: 50000
    per_position: 10000
    daily: 15000
    monthly: 40000
  margin:
    initial_rate: 0.50
    maintenance_rate: 0.25
triggers:
  guaranteed_stop_premium: 0.005
  default_trail_pct: 0.05
breakers:
  - {name: daily-loss, condition: daily_loss, threshold: 0.07, cooldown: 1h, auto_reset: true}
  - {name: volatility-spike, condition: volatility_spike, threshold: 3.0, cooldown: 30m, auto_reset: true}
  - {name: correlation-breakdown, condition: correlation_breakdown, threshold: 0.95, cooldown: 2h, auto_reset: false}
report:
  var_cap_pct: 0.10
  stress_cap_pct: 0.50
  drawdown_cap: 0.50
`

// Default returns the built-in configuration, validated.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultYAML), &cfg); err != nil {
		return nil, riskerrors.NewConfigError("defaults", "unmarshal failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration starting from the built-in defaults, merging an
// optional YAML file and RISKCORE_* environment overrides on top.
func Load(path string, logger *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultYAML)); err != nil {
		return nil, riskerrors.NewConfigError("defaults", "read failed: %v", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, riskerrors.NewConfigError("file", "merge %s failed: %v", path, err)
		}
		logger.Info("merged configuration file", zap.String("path", path))
	}

	v.SetEnvPrefix("RISKCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, riskerrors.NewConfigError("root", "unmarshal failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.Int("scenarios", len(cfg.Stress.Scenarios)),
		zap.Int("limits", len(cfg.Limits.Limits)),
		zap.Int("breakers", len(cfg.Breakers)))

	return &cfg, nil
}

// stringToDurationHook decodes "1h"-style strings into config.Duration.
func stringToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(Duration(0)) {
			return data, nil
		}
		parsed, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, err
		}
		return Duration(parsed), nil
	}
}
