// Package factor decomposes portfolio variance into contributions from ten
// canonical risk factors.
package factor

import (
	"go.uber.org/zap"

	riskerrors "github.com/quantrisk/riskcore/pkg/errors"
)

// Factor is one of the canonical risk factors. The set is closed: exposure
// vectors and the covariance matrix are indexed in this order.
type Factor string

const (
	FactorMarketBeta    Factor = "market_beta"
	FactorSize          Factor = "size"
	FactorValue         Factor = "value"
	FactorMomentum      Factor = "momentum"
	FactorQuality       Factor = "quality"
	FactorLowVolatility Factor = "low_volatility"
	FactorRates         Factor = "rate_sensitivity"
	FactorCredit        Factor = "credit_spread"
	FactorCommodity     Factor = "commodity"
	FactorCurrency      Factor = "currency"
)

// Factors lists every canonical factor in matrix order.
var Factors = []Factor{
	FactorMarketBeta, FactorSize, FactorValue, FactorMomentum, FactorQuality,
	FactorLowVolatility, FactorRates, FactorCredit, FactorCommodity, FactorCurrency,
}

// Exposure is a per-position loading on each canonical factor, paired with
// the position's portfolio weight.
type Exposure struct {
	Symbol   string
	Weight   float64
	Loadings map[Factor]float64
}

// Risk is the decomposition output for a single factor.
type Risk struct {
	Factor    Factor  `json:"factor"`
	Exposure  float64 `json:"exposure"`
	Marginal  float64 `json:"marginal_contribution"`
	Component float64 `json:"component_contribution"`
	PctOfVar  float64 `json:"pct_of_variance"`
}

// Analysis is the full decomposition.
type Analysis struct {
	TotalVariance float64 `json:"total_variance"`
	Factors       []Risk  `json:"factors"`
}

// Analyzer holds a validated factor covariance matrix.
type Analyzer struct {
	covariance [][]float64
	logger     *zap.Logger
}

// NewAnalyzer validates the covariance matrix: it must be square over the
// canonical factor set and symmetric.
func NewAnalyzer(covariance [][]float64, logger *zap.Logger) (*Analyzer, error) {
	n := len(Factors)
	if len(covariance) != n {
		return nil, riskerrors.NewConfigError("factor.covariance", "expected %dx%d matrix, got %d rows", n, n, len(covariance))
	}
	for i, row := range covariance {
		if len(row) != n {
			return nil, riskerrors.NewConfigError("factor.covariance", "row %d has %d columns, expected %d", i, len(row), n)
		}
	}
	const tol = 1e-9
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if diff := covariance[i][j] - covariance[j][i]; diff > tol || diff < -tol {
				return nil, riskerrors.NewConfigError("factor.covariance", "matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return &Analyzer{covariance: covariance, logger: logger}, nil
}

// Analyze computes the weighted portfolio exposure vector, total variance
// x'Sx, and per-factor marginal, component, and percentage contributions.
func (a *Analyzer) Analyze(exposures []Exposure) (*Analysis, error) {
	const op = "factor.Analyze"
	if len(exposures) == 0 {
		return nil, riskerrors.NewInvalidInput(op, "no position exposures supplied")
	}

	n := len(Factors)
	x := make([]float64, n)
	for _, e := range exposures {
		for i, f := range Factors {
			x[i] += e.Weight * e.Loadings[f]
		}
	}

	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			total += x[i] * a.covariance[i][j] * x[j]
		}
	}

	out := &Analysis{TotalVariance: total, Factors: make([]Risk, n)}
	for i, f := range Factors {
		marginal := 2 * x[i] * a.covariance[i][i]
		component := x[i] * marginal
		pct := 0.0
		if total != 0 {
			pct = component / total
		}
		out.Factors[i] = Risk{
			Factor:    f,
			Exposure:  x[i],
			Marginal:  marginal,
			Component: component,
			PctOfVar:  pct,
		}
	}
	return out, nil
}
