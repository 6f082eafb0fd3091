package metricsengine

import "math"

// kupiecTest runs the proportion-of-failures likelihood-ratio backtest:
// violations where the realized loss exceeds the 1-day VaR are counted and
// compared against the expected count n*(1-confidence). The model is rejected
// when the LR statistic's chi-square(1) p-value falls below 0.05.
func kupiecTest(returns []float64, varFrac float64, confidence float64) *KupiecResult {
	n := len(returns)
	p := 1 - confidence

	violations := 0
	for _, r := range returns {
		if r < -varFrac {
			violations++
		}
	}

	res := &KupiecResult{
		Violations: violations,
		Expected:   float64(n) * p,
	}

	x := float64(violations)
	nn := float64(n)

	// LR = -2 ln[(1-p)^(n-x) p^x] + 2 ln[(1-x/n)^(n-x) (x/n)^x]
	logNull := (nn-x)*math.Log(1-p) + x*math.Log(p)
	var logAlt float64
	switch violations {
	case 0:
		logAlt = 0 // (x/n)^x -> 1, (1-0)^n -> 1
	case n:
		logAlt = 0
	default:
		rate := x / nn
		logAlt = (nn-x)*math.Log(1-rate) + x*math.Log(rate)
	}

	res.LRStat = math.Max(0, -2*(logNull-logAlt))
	res.PValue = chiSquare1Survival(res.LRStat)
	res.Rejected = res.PValue < 0.05
	return res
}
