package metricsengine

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// cancelCheckInterval bounds how many draws a worker generates between
// cooperative cancellation checks.
const cancelCheckInterval = 512

// monteCarlo fits a Student-t distribution to the return series to capture
// fat tails, simulates holding-period returns across a worker pool, and takes
// percentile losses on the simulated outcomes. A failed fit falls back to
// normal draws with the result flagged as degraded.
func (e *Engine) monteCarlo(ctx context.Context, returns []float64, mu, sigma, pv, h float64, seed int64) (*VaRResult, float64, float64, error) {
	nu, fitOK := fitStudentT(returns, mu, sigma)

	draws := e.cfg.MonteCarloDraws
	simulated := make([]float64, draws)

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > draws {
		workers = 1
	}

	muH := mu * h
	sigmaH := sigma * math.Sqrt(h)
	// Match the sample variance when drawing from a t distribution.
	tScale := 1.0
	if fitOK {
		tScale = math.Sqrt((nu - 2) / nu)
	}

	chunk := (draws + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > draws {
			end = draws
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(worker) + 1))
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckInterval == 0 && ctx.Err() != nil {
					return
				}
				var shock float64
				if fitOK {
					shock = studentTVariate(rng, nu) * tScale
				} else {
					shock = rng.NormFloat64()
				}
				simulated[i] = muH + sigmaH*shock
			}
		}(w, start, end)
	}
	wg.Wait()

	// Partial results are never published: a cancelled batch is discarded.
	if err := ctx.Err(); err != nil {
		return nil, 0, 0, err
	}

	losses := make([]float64, draws)
	for i, r := range simulated {
		losses[i] = -r * pv
	}

	var95 := math.Max(0, percentile(losses, 95))
	var99 := math.Max(var95, math.Max(0, percentile(losses, 99)))
	cvar95 := math.Max(var95, tailMeanAbove(losses, percentile(losses, 95)))
	cvar99 := math.Max(var99, tailMeanAbove(losses, percentile(losses, 99)))

	res := &VaRResult{
		Method: MethodMonteCarlo,
		VaR95:  var95,
		VaR99:  var99,
		CVaR95: math.Max(0, cvar95),
		CVaR99: math.Max(0, cvar99),
	}
	if !fitOK {
		res.Degraded = true
		res.DegradedReason = "student-t fit did not converge, fell back to normal simulation"
		e.logger.Warn("monte carlo t-fit fallback",
			zap.Float64("excess_kurtosis", excessKurtosis(returns, mu, sigma)))
	}

	// Backtest against the 1-day simulated quantiles.
	scaleBack := pv * math.Sqrt(h)
	return res, var95 / scaleBack, var99 / scaleBack, nil
}

// fitStudentT estimates degrees of freedom by method of moments on the excess
// kurtosis: nu = 4 + 6/k for k > 0. The fit is rejected when the series shows
// no excess kurtosis or the estimate is unstable.
func fitStudentT(returns []float64, mu, sigma float64) (float64, bool) {
	k := excessKurtosis(returns, mu, sigma)
	if k <= 0.05 || math.IsNaN(k) {
		return 0, false
	}
	nu := 4 + 6/k
	if nu < 2.5 {
		nu = 2.5
	}
	if nu > 30 {
		// Indistinguishable from normal at this point.
		return 0, false
	}
	return nu, true
}

// studentTVariate draws a standard Student-t variate with nu degrees of
// freedom as Z / sqrt(ChiSq(nu)/nu).
func studentTVariate(rng *rand.Rand, nu float64) float64 {
	z := rng.NormFloat64()
	chi2 := 2 * gammaVariate(rng, nu/2)
	if chi2 <= 0 {
		return z
	}
	return z / math.Sqrt(chi2/nu)
}

// gammaVariate samples Gamma(alpha, 1) using the Marsaglia-Tsang method.
func gammaVariate(rng *rand.Rand, alpha float64) float64 {
	if alpha < 1 {
		// Boost: Gamma(a) = Gamma(a+1) * U^(1/a)
		u := rng.Float64()
		return gammaVariate(rng, alpha+1) * math.Pow(u, 1/alpha)
	}
	d := alpha - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
