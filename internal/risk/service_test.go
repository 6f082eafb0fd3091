package risk

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/quantrisk/riskcore/internal/config"
	"github.com/quantrisk/riskcore/internal/risk/factor"
	"github.com/quantrisk/riskcore/internal/risk/metricsengine"
	"github.com/quantrisk/riskcore/internal/risk/sizing"
	"github.com/quantrisk/riskcore/internal/risk/triggers"
	"github.com/quantrisk/riskcore/pkg/models"
)

type staticClassifier struct{}

func (staticClassifier) Classify(symbol string) (models.AssetClass, error) {
	return models.AssetClassEquity, nil
}

type ServiceTestSuite struct {
	suite.Suite
	logger *zap.Logger
	svc    *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.logger = zaptest.NewLogger(s.T())
	cfg, err := config.Default()
	s.Require().NoError(err)
	cfg.Metrics.Seed = 42
	svc, err := NewService(cfg, s.logger)
	s.Require().NoError(err)
	s.svc = svc
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) portfolio() *models.Portfolio {
	return &models.Portfolio{
		Positions: []models.Position{
			{Symbol: "SPY", Value: decimal.NewFromInt(40_000), Sector: "index", AssetClass: models.AssetClassEquity},
			{Symbol: "AGG", Value: decimal.NewFromInt(40_000), Sector: "bonds", AssetClass: models.AssetClassBond},
			{Symbol: "GLD", Value: decimal.NewFromInt(30_000), Sector: "commodities", AssetClass: models.AssetClassCommodity},
		},
		Equity:   decimal.NewFromInt(110_000),
		Borrowed: decimal.NewFromInt(0),
	}
}

func (s *ServiceTestSuite) market() map[string]models.MarketData {
	return map[string]models.MarketData{
		"SPY": {Symbol: "SPY", Price: 500, BidAskSpread: 0.0001, AvgDailyVolumeUSD: 50_000_000_000, Volatility: 0.15, MaxCorrelation: 0.5},
		"AGG": {Symbol: "AGG", Price: 100, BidAskSpread: 0.0002, AvgDailyVolumeUSD: 500_000_000, Volatility: 0.05, MaxCorrelation: 0.3},
		"GLD": {Symbol: "GLD", Price: 200, BidAskSpread: 0.0003, AvgDailyVolumeUSD: 1_000_000_000, Volatility: 0.12, MaxCorrelation: 0.2},
	}
}

func (s *ServiceTestSuite) returns(n int) []float64 {
	rng := rand.New(rand.NewSource(11))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * 0.008
	}
	return out
}

func (s *ServiceTestSuite) factorCovariance() [][]float64 {
	n := len(factor.Factors)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		cov[i][i] = 0.04
	}
	return cov
}

func (s *ServiceTestSuite) reportInputs() ReportInputs {
	return ReportInputs{
		Portfolio:   s.portfolio(),
		Market:      s.market(),
		Returns:     s.returns(400),
		EquityCurve: []float64{100_000, 104_000, 101_000, 108_000, 110_000},
		Classifier:  staticClassifier{},
		FactorExposures: []factor.Exposure{
			{Symbol: "SPY", Weight: 0.4, Loadings: map[factor.Factor]float64{factor.FactorMarketBeta: 1.0}},
			{Symbol: "AGG", Weight: 0.4, Loadings: map[factor.Factor]float64{factor.FactorRates: -0.8}},
			{Symbol: "GLD", Weight: 0.3, Loadings: map[factor.Factor]float64{factor.FactorCommodity: 1.0}},
		},
		FactorCovariance: s.factorCovariance(),
		Correlations: &models.CorrelationMatrix{
			Symbols: []string{"SPY", "AGG", "GLD"},
			Values: [][]float64{
				{1, -0.3, 0.1},
				{-0.3, 1, 0.0},
				{0.1, 0.0, 1},
			},
		},
	}
}

func (s *ServiceTestSuite) TestGenerateRiskReport() {
	rpt, err := s.svc.GenerateRiskReport(context.Background(), s.reportInputs())
	s.Require().NoError(err)

	s.Len(rpt.VaR, len(metricsengine.AllMethods))
	s.Len(rpt.Stress, 8)
	s.Require().NotNil(rpt.Factors)
	s.Len(rpt.Factors.Factors, len(factor.Factors))
	s.Require().NotNil(rpt.Correlations)
	s.InDelta(0.3, rpt.Correlations.MaxOffDiagonal(), 1e-12)
	s.NotNil(rpt.Liquidity)
	s.NotNil(rpt.Drawdown)
	s.NotNil(rpt.Limits)
	s.GreaterOrEqual(rpt.Score, 0.0)
	s.LessOrEqual(rpt.Score, 100.0)
	s.NotEmpty(rpt.Level)
}

func (s *ServiceTestSuite) TestGenerateRiskReportHoldingPeriod() {
	oneDay, err := s.svc.GenerateRiskReport(context.Background(), s.reportInputs())
	s.Require().NoError(err)

	in := s.reportInputs()
	in.HoldingPeriodDays = 10
	tenDay, err := s.svc.GenerateRiskReport(context.Background(), in)
	s.Require().NoError(err)

	// Historical VaR scales with the square root of the horizon.
	ratio := tenDay.VaR[metricsengine.MethodHistorical].VaR95 /
		oneDay.VaR[metricsengine.MethodHistorical].VaR95
	s.InDelta(math.Sqrt(10), ratio, 1e-9)
}

func (s *ServiceTestSuite) TestGenerateRiskReportFailsClosed() {
	// A too-short return series fails the VaR leg, which fails the report.
	in := s.reportInputs()
	in.Returns = s.returns(5)
	_, err := s.svc.GenerateRiskReport(context.Background(), in)
	s.Error(err)

	// A missing factor covariance matrix fails the factor leg.
	in = s.reportInputs()
	in.FactorCovariance = nil
	_, err = s.svc.GenerateRiskReport(context.Background(), in)
	s.Error(err)
}

func (s *ServiceTestSuite) TestOnTickBreakerThenTriggers() {
	ctx := context.Background()

	_, err := s.svc.Triggers().SetStopLoss("pos-spy", "SPY", 510, 510, triggers.KindStopFixed, triggers.StopOptions{Distance: 0.01})
	s.Require().NoError(err)

	snap := &models.MarketSnapshot{
		Data:               s.market(), // SPY at 500, below the 504.9 stop
		DailyReturn:        -0.08,      // through the 7% daily-loss breaker
		IndexVolatility:    0.2,
		BaselineVolatility: 0.2,
	}
	breakerEvents, triggerEvents, err := s.svc.OnTick(ctx, snap)
	s.Require().NoError(err)

	s.Require().Len(breakerEvents, 1)
	s.Equal("daily-loss", breakerEvents[0].Name)
	s.True(s.svc.Breakers().AnyTriggered())

	s.Require().Len(triggerEvents, 1)
	s.Equal("pos-spy", triggerEvents[0].PositionID)

	// The halt decided on this tick blocks the next trade.
	sub, err := s.svc.SubmitTrade(ctx, TradeRequest{
		Proposal: models.TradeProposal{
			Symbol: "SPY", Side: models.SideBuy,
			Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(500),
		},
	}, s.portfolio(), s.market())
	s.Require().NoError(err)
	s.False(sub.Decision.Allowed)
}

func (s *ServiceTestSuite) TestSubmitTradeSizesThenChecks() {
	sub, err := s.svc.SubmitTrade(context.Background(), TradeRequest{
		Proposal: models.TradeProposal{
			Symbol: "SPY", Side: models.SideBuy,
			Price: decimal.NewFromInt(100), Sector: "index",
		},
		Sizing: &sizing.Request{
			AccountValue: 100_000,
			RiskPerTrade: 2_000,
			EntryPrice:   100,
			StopPrice:    95,
		},
	}, s.portfolio(), s.market())
	s.Require().NoError(err)
	s.Require().NotNil(sub.Sizing)
	s.InDelta(400, sub.Sizing.Shares, 1e-9)
	s.NotNil(sub.Decision)
}

func (s *ServiceTestSuite) TestSubmitTradeDustIsNotSubmitted() {
	sub, err := s.svc.SubmitTrade(context.Background(), TradeRequest{
		Proposal: models.TradeProposal{
			Symbol: "SPY", Side: models.SideBuy,
			Price: decimal.NewFromInt(100),
		},
		Sizing: &sizing.Request{
			AccountValue: 1_000,
			RiskPerTrade: 5,
			EntryPrice:   100,
			StopPrice:    95,
		},
	}, s.portfolio(), s.market())
	s.Require().NoError(err)
	s.Zero(sub.Sizing.Shares)
	s.False(sub.Decision.Allowed)
}

func (s *ServiceTestSuite) TestCheckHealth() {
	h := s.svc.CheckHealth()
	s.Equal(8, h.ScenariosLoaded)
	s.Len(h.Breakers, 3)
	s.False(h.TradingHalted)
	s.Zero(h.ActiveTriggers)
}

func (s *ServiceTestSuite) TestAnalyzeFactors() {
	analysis, err := s.svc.AnalyzeFactors(s.factorCovariance(), []factor.Exposure{
		{Symbol: "SPY", Weight: 1.0, Loadings: map[factor.Factor]float64{factor.FactorMarketBeta: 1.0}},
	})
	s.Require().NoError(err)
	s.InDelta(0.04, analysis.TotalVariance, 1e-12)
}
