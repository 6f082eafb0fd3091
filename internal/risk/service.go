// Package risk wires the individual engines into one service facade. The
// facade owns construction order, the per-tick evaluation sequence, and the
// parallel fan-out behind full report generation.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	"github.com/quantrisk/riskcore/internal/risk/breakers"
	"github.com/quantrisk/riskcore/internal/risk/factor"
	"github.com/quantrisk/riskcore/internal/risk/limits"
	"github.com/quantrisk/riskcore/internal/risk/liquidity"
	"github.com/quantrisk/riskcore/internal/risk/metricsengine"
	"github.com/quantrisk/riskcore/internal/risk/performance"
	"github.com/quantrisk/riskcore/internal/risk/report"
	"github.com/quantrisk/riskcore/internal/risk/sizing"
	"github.com/quantrisk/riskcore/internal/risk/stress"
	"github.com/quantrisk/riskcore/internal/risk/triggers"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
	"github.com/quantrisk/riskcore/pkg/models"
)

// Service is the top-level risk engine facade.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	metricsEngine *metricsengine.Engine
	stressEngine  *stress.Engine
	assessor      *liquidity.Assessor
	sizer         *sizing.Sizer
	enforcer      *limits.Enforcer
	triggers      *triggers.Manager
	breakers      *breakers.Registry
	aggregator    *report.Aggregator

	startedAt time.Time
}

// NewService constructs the full engine stack from validated configuration.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		return nil, riskerrors.NewConfigError("service", "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stressEngine, err := stress.NewEngine(cfg.Stress, logger)
	if err != nil {
		return nil, err
	}
	registry, err := breakers.NewRegistry(cfg.Breakers, logger)
	if err != nil {
		return nil, err
	}
	enforcer, err := limits.NewEnforcer(cfg.Limits, registry, logger)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:           cfg,
		logger:        logger,
		metricsEngine: metricsengine.NewEngine(cfg.Metrics, logger),
		stressEngine:  stressEngine,
		assessor:      liquidity.NewAssessor(cfg.Liquidity, logger),
		sizer:         sizing.NewSizer(cfg.Sizing, logger),
		enforcer:      enforcer,
		triggers:      triggers.NewManager(cfg.Triggers, logger),
		breakers:      registry,
		aggregator:    report.NewAggregator(cfg.Report, logger),
		startedAt:     time.Now(),
	}
	logger.Info("risk service constructed",
		zap.Int("scenarios", len(cfg.Stress.Scenarios)),
		zap.Int("limits", len(cfg.Limits.Limits)),
		zap.Int("breakers", len(cfg.Breakers)))
	return svc, nil
}

// Triggers exposes the stop-loss/take-profit manager.
func (s *Service) Triggers() *triggers.Manager { return s.triggers }

// Breakers exposes the circuit breaker registry.
func (s *Service) Breakers() *breakers.Registry { return s.breakers }

// Limits exposes the limit enforcer.
func (s *Service) Limits() *limits.Enforcer { return s.enforcer }

// Sizer exposes the position sizer.
func (s *Service) Sizer() *sizing.Sizer { return s.sizer }

// ReportInputs is everything GenerateRiskReport needs beyond configuration.
// Returns and EquityCurve are historical series supplied by the caller;
// nothing here reaches out to external data sources.
type ReportInputs struct {
	Portfolio         *models.Portfolio
	Market            map[string]models.MarketData
	Returns           []float64 // daily portfolio returns, oldest first
	EquityCurve       []float64 // account equity series, oldest first
	Classifier        stress.AssetClassifier
	FactorExposures   []factor.Exposure
	FactorCovariance  [][]float64
	Correlations      *models.CorrelationMatrix
	HoldingPeriodDays int // VaR horizon; 0 means 1 day
}

// GenerateRiskReport runs the VaR suite, stress tests, factor decomposition,
// liquidity assessment, drawdown analysis, and limit report concurrently,
// then aggregates them into one scored report. Any component failure fails
// the whole report; a partial report is never returned.
func (s *Service) GenerateRiskReport(ctx context.Context, in ReportInputs) (*report.RiskReport, error) {
	const op = "risk.GenerateRiskReport"
	if in.Portfolio == nil {
		return nil, riskerrors.NewInvalidInput(op, "portfolio is required")
	}
	pv, _ := in.Portfolio.GrossValue().Float64()
	if pv <= 0 {
		return nil, riskerrors.NewInvalidInput(op, "portfolio has no gross value")
	}

	holding := in.HoldingPeriodDays
	if holding <= 0 {
		holding = 1
	}

	var (
		wg        sync.WaitGroup
		varSuite  map[metricsengine.Method]*metricsengine.VaRResult
		stressRes []*stress.Result
		factorRes *factor.Analysis
		liqRes    *liquidity.Risk
		ddRes     *performance.DrawdownResult
		limRes    *limits.Report
		errs      [6]error
	)

	wg.Add(6)
	go func() {
		defer wg.Done()
		varSuite, errs[0] = s.metricsEngine.CalculateVaRSuite(ctx, in.Returns, pv, holding)
	}()
	go func() {
		defer wg.Done()
		stressRes, errs[1] = s.stressEngine.RunStressTests(ctx, in.Portfolio.Positions, in.Classifier)
	}()
	go func() {
		defer wg.Done()
		factorRes, errs[2] = s.AnalyzeFactors(in.FactorCovariance, in.FactorExposures)
	}()
	go func() {
		defer wg.Done()
		liqRes, errs[3] = s.assessor.Assess(in.Portfolio.Positions, in.Market)
	}()
	go func() {
		defer wg.Done()
		ddRes, errs[4] = performance.MaxDrawdown(in.EquityCurve)
	}()
	go func() {
		defer wg.Done()
		limRes, errs[5] = s.enforcer.GenerateLimitReport(ctx, in.Portfolio, in.Market)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.logger.Error("risk report component failed", zap.Error(err))
			return nil, err
		}
	}

	return s.aggregator.Aggregate(ctx, report.Inputs{
		PortfolioValue: pv,
		VaR:            varSuite,
		Stress:         stressRes,
		Factors:        factorRes,
		Correlations:   in.Correlations,
		Liquidity:      liqRes,
		Drawdown:       ddRes,
		Limits:         limRes,
	})
}

// OnTick processes one market snapshot. Order is fixed: breakers first so a
// halt decided this tick is visible to anything downstream, then trigger
// evaluation against the same prices.
func (s *Service) OnTick(ctx context.Context, snap *models.MarketSnapshot) ([]breakers.Event, []triggers.Event, error) {
	const op = "risk.OnTick"
	if snap == nil {
		return nil, nil, riskerrors.NewInvalidInput(op, "snapshot is required")
	}

	reading := breakers.Reading{
		DailyLoss:      -snap.DailyReturn,
		MaxCorrelation: snap.Correlations.MaxOffDiagonal(),
	}
	if snap.BaselineVolatility > 0 {
		reading.VolatilityRatio = snap.IndexVolatility / snap.BaselineVolatility
	}
	breakerEvents, err := s.breakers.Evaluate(ctx, reading)
	if err != nil {
		return nil, nil, err
	}

	triggerEvents, err := s.triggers.CheckTriggers(ctx, snap.Prices())
	if err != nil {
		return breakerEvents, nil, err
	}
	return breakerEvents, triggerEvents, nil
}

// TradeRequest pairs a proposal with an optional sizing request. When Sizing
// is set, the proposal's quantity is derived from the sizing result before
// limit checks run.
type TradeRequest struct {
	Proposal models.TradeProposal
	Sizing   *sizing.Request
}

// TradeSubmission is the combined sizing and pre-trade check outcome.
type TradeSubmission struct {
	Sizing   *sizing.Result        `json:"sizing,omitempty"`
	Decision *limits.TradeDecision `json:"decision"`
}

// SubmitTrade sizes the trade when requested, then runs the pre-trade limit
// gate. A sized-to-zero request is returned without limit checks since there
// is nothing to submit.
func (s *Service) SubmitTrade(ctx context.Context, req TradeRequest, portfolio *models.Portfolio, market map[string]models.MarketData) (*TradeSubmission, error) {
	sub := &TradeSubmission{}

	if req.Sizing != nil {
		sized, err := s.sizer.Size(*req.Sizing)
		if err != nil {
			return nil, err
		}
		sub.Sizing = sized
		if sized.Shares == 0 {
			sub.Decision = &limits.TradeDecision{Allowed: false}
			return sub, nil
		}
		req.Proposal.Quantity = decimal.NewFromFloat(sized.Shares)
	}

	decision, err := s.enforcer.CheckTrade(ctx, req.Proposal, portfolio, market)
	if err != nil {
		return nil, err
	}
	sub.Decision = decision
	return sub, nil
}

// Health reports per-component liveness for operational checks.
type Health struct {
	Uptime          time.Duration     `json:"uptime"`
	ActiveTriggers  int               `json:"active_triggers"`
	Breakers        []breakers.Status `json:"breakers"`
	TradingHalted   bool              `json:"trading_halted"`
	ScenariosLoaded int               `json:"scenarios_loaded"`
}

// CheckHealth snapshots the service's operational state.
func (s *Service) CheckHealth() Health {
	return Health{
		Uptime:          time.Since(s.startedAt),
		ActiveTriggers:  s.triggers.ActiveCount(),
		Breakers:        s.breakers.Snapshot(),
		TradingHalted:   s.breakers.AnyTriggered(),
		ScenariosLoaded: len(s.cfg.Stress.Scenarios),
	}
}

// AnalyzeFactors runs a factor decomposition with the supplied covariance
// matrix. The analyzer is rebuilt per call because covariance estimates are
// caller-owned snapshots.
func (s *Service) AnalyzeFactors(covariance [][]float64, exposures []factor.Exposure) (*factor.Analysis, error) {
	analyzer, err := factor.NewAnalyzer(covariance, s.logger)
	if err != nil {
		return nil, err
	}
	return analyzer.Analyze(exposures)
}
