package metricsengine

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

// Engine computes the full VaR/CVaR suite over an immutable return series.
type Engine struct {
	cfg    config.MetricsConfig
	logger *zap.Logger
}

// NewEngine creates a metrics engine from validated configuration.
func NewEngine(cfg config.MetricsConfig, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// CalculateVaRSuite computes VaR95/VaR99/CVaR95/CVaR99 with every supported
// method, bootstrap confidence intervals for the historical method, and a
// Kupiec backtest per method. Results are dollar losses against
// portfolioValue over the holding period. A zero-variance series yields
// all-zero results for every method without error.
func (e *Engine) CalculateVaRSuite(ctx context.Context, returns []float64, portfolioValue float64, holdingPeriodDays int) (map[Method]*VaRResult, error) {
	const op = "metricsengine.CalculateVaRSuite"

	if len(returns) < e.cfg.MinObservations {
		return nil, riskerrors.NewInvalidInput(op, "return series too short: %d observations, need %d",
			len(returns), e.cfg.MinObservations)
	}
	if portfolioValue <= 0 {
		return nil, riskerrors.NewInvalidInput(op, "portfolio value must be positive, got %f", portfolioValue)
	}
	if holdingPeriodDays < 1 {
		return nil, riskerrors.NewInvalidInput(op, "holding period must be at least 1 day, got %d", holdingPeriodDays)
	}
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, riskerrors.NewInvalidInput(op, "return series contains non-finite value at index %d", i)
		}
	}

	mu := mean(returns)
	sigma := stdDev(returns, mu)

	results := make(map[Method]*VaRResult, len(AllMethods))

	if sigma == 0 {
		for _, m := range AllMethods {
			results[m] = &VaRResult{Method: m}
		}
		e.logger.Debug("zero-variance return series, all VaR methods report zero risk",
			zap.Int("observations", len(returns)))
		return results, nil
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	scale := math.Sqrt(float64(holdingPeriodDays))

	type methodRun struct {
		method Method
		run    func() (*VaRResult, float64, float64, error)
	}
	runs := []methodRun{
		{MethodHistorical, func() (*VaRResult, float64, float64, error) {
			return e.historical(returns, portfolioValue, scale, rng)
		}},
		{MethodParametric, func() (*VaRResult, float64, float64, error) {
			return e.parametric(mu, sigma, portfolioValue, float64(holdingPeriodDays)), paramFrac(mu, sigma, 0.05), paramFrac(mu, sigma, 0.01), nil
		}},
		{MethodMonteCarlo, func() (*VaRResult, float64, float64, error) {
			return e.monteCarlo(ctx, returns, mu, sigma, portfolioValue, float64(holdingPeriodDays), seed)
		}},
		{MethodCornishFisher, func() (*VaRResult, float64, float64, error) {
			return e.cornishFisher(returns, mu, sigma, portfolioValue, float64(holdingPeriodDays))
		}},
		{MethodEWMA, func() (*VaRResult, float64, float64, error) {
			return e.ewma(returns, mu, portfolioValue, float64(holdingPeriodDays))
		}},
	}

	for _, mr := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, frac95, frac99, err := mr.run()
		if err != nil {
			return nil, err
		}
		res.Backtest95 = kupiecTest(returns, frac95, 0.95)
		res.Backtest99 = kupiecTest(returns, frac99, 0.99)
		results[mr.method] = res
	}

	return results, nil
}

// historical computes empirical-percentile VaR/CVaR with bootstrap intervals.
// The returned fractions are the 1-day fractional VaR used for backtesting.
func (e *Engine) historical(returns []float64, pv, scale float64, rng *rand.Rand) (*VaRResult, float64, float64, error) {
	q5 := percentile(returns, 5)
	q1 := percentile(returns, 1)

	frac95 := math.Max(0, -q5)
	frac99 := math.Max(0, -q1)
	cvarFrac95 := math.Max(frac95, -tailMeanBelow(returns, q5))
	cvarFrac99 := math.Max(frac99, -tailMeanBelow(returns, q1))

	res := &VaRResult{
		Method: MethodHistorical,
		VaR95:  frac95 * scale * pv,
		VaR99:  math.Max(frac95, frac99) * scale * pv,
		CVaR95: cvarFrac95 * scale * pv,
		CVaR99: math.Max(cvarFrac95, cvarFrac99) * scale * pv,
	}
	res.CI95, res.CI99 = e.bootstrapIntervals(returns, pv, scale, rng)
	return res, frac95, frac99, nil
}

// bootstrapIntervals resamples the series with replacement and takes the
// 2.5/97.5 percentiles of the resampled VaR estimates.
func (e *Engine) bootstrapIntervals(returns []float64, pv, scale float64, rng *rand.Rand) (*ConfidenceInterval, *ConfidenceInterval) {
	n := len(returns)
	bootVaR95 := make([]float64, e.cfg.BootstrapResamples)
	bootVaR99 := make([]float64, e.cfg.BootstrapResamples)
	sample := make([]float64, n)

	for b := 0; b < e.cfg.BootstrapResamples; b++ {
		for i := range sample {
			sample[i] = returns[rng.Intn(n)]
		}
		bootVaR95[b] = math.Max(0, -percentile(sample, 5)) * scale * pv
		bootVaR99[b] = math.Max(0, -percentile(sample, 1)) * scale * pv
	}

	ci95 := &ConfidenceInterval{Lower: percentile(bootVaR95, 2.5), Upper: percentile(bootVaR95, 97.5)}
	ci99 := &ConfidenceInterval{Lower: percentile(bootVaR99, 2.5), Upper: percentile(bootVaR99, 97.5)}
	return ci95, ci99
}

// paramFrac is the 1-day fractional parametric VaR at tail probability alpha.
func paramFrac(mu, sigma, alpha float64) float64 {
	return math.Max(0, -(mu + normQuantile(alpha)*sigma))
}

// parametric computes normal-distribution VaR with analytic CVaR from the
// density at the quantile divided by the tail probability.
func (e *Engine) parametric(mu, sigma, pv, h float64) *VaRResult {
	return parametricWithVol(MethodParametric, mu, sigma, pv, h)
}

func parametricWithVol(method Method, mu, sigma, pv, h float64) *VaRResult {
	muH := mu * h
	sigmaH := sigma * math.Sqrt(h)

	varAt := func(alpha float64) float64 {
		return math.Max(0, -(muH + normQuantile(alpha)*sigmaH)) * pv
	}
	cvarAt := func(alpha, varAmt float64) float64 {
		es := math.Max(0, -(muH - sigmaH*normPDF(normQuantile(alpha))/alpha)) * pv
		return math.Max(varAmt, es)
	}

	var95 := varAt(0.05)
	var99 := math.Max(var95, varAt(0.01))
	return &VaRResult{
		Method: method,
		VaR95:  var95,
		VaR99:  var99,
		CVaR95: cvarAt(0.05, var95),
		CVaR99: cvarAt(0.01, var99),
	}
}

// cornishFisher adjusts the normal quantile with sample skewness and excess
// kurtosis. CVaR uses the documented 1.20x/1.25x approximation and is flagged
// as approximated rather than exact.
func (e *Engine) cornishFisher(returns []float64, mu, sigma, pv, h float64) (*VaRResult, float64, float64, error) {
	s := skewness(returns, mu, sigma)
	k := excessKurtosis(returns, mu, sigma)

	adjust := func(z float64) float64 {
		return z + (z*z-1)*s/6 + (z*z*z-3*z)*k/24 - (2*z*z*z-5*z)*s*s/36
	}

	muH := mu * h
	sigmaH := sigma * math.Sqrt(h)
	z95 := adjust(normQuantile(0.05))
	z99 := adjust(normQuantile(0.01))

	frac95 := math.Max(0, -(mu + z95*sigma))
	frac99 := math.Max(frac95, math.Max(0, -(mu+z99*sigma)))

	var95 := math.Max(0, -(muH + z95*sigmaH)) * pv
	var99 := math.Max(var95, math.Max(0, -(muH+z99*sigmaH))*pv)

	res := &VaRResult{
		Method:           MethodCornishFisher,
		VaR95:            var95,
		VaR99:            var99,
		CVaR95:           1.20 * var95,
		CVaR99:           1.25 * var99,
		CVaRApproximated: true,
	}
	return res, frac95, frac99, nil
}

// ewma substitutes an exponentially-weighted volatility estimate into the
// parametric formula. CVaR uses the same fixed-multiplier approximation as
// Cornish-Fisher.
func (e *Engine) ewma(returns []float64, mu, pv, h float64) (*VaRResult, float64, float64, error) {
	lambda := e.cfg.EWMALambda
	s2 := returns[0] * returns[0]
	for _, r := range returns[1:] {
		s2 = lambda*s2 + (1-lambda)*r*r
	}
	sigmaE := math.Sqrt(s2)

	muH := mu * h
	sigmaH := sigmaE * math.Sqrt(h)
	var95 := math.Max(0, -(muH + normQuantile(0.05)*sigmaH)) * pv
	var99 := math.Max(var95, math.Max(0, -(muH+normQuantile(0.01)*sigmaH))*pv)

	res := &VaRResult{
		Method:           MethodEWMA,
		VaR95:            var95,
		VaR99:            var99,
		CVaR95:           1.20 * var95,
		CVaR99:           1.25 * var99,
		CVaRApproximated: true,
	}
	return res, paramFrac(mu, sigmaE, 0.05), paramFrac(mu, sigmaE, 0.01), nil
}
