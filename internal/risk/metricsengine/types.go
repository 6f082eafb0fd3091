// Package metricsengine computes portfolio Value-at-Risk and Conditional
// Value-at-Risk with five methodologies, plus bootstrap confidence intervals
// and a Kupiec proportion-of-failures backtest per method.
package metricsengine

// Method identifies a VaR/CVaR calculation methodology.
type Method string

const (
	MethodHistorical    Method = "historical"
	MethodParametric    Method = "parametric"
	MethodMonteCarlo    Method = "monte_carlo"
	MethodCornishFisher Method = "cornish_fisher"
	MethodEWMA          Method = "ewma"
)

// AllMethods lists every supported method in canonical order.
var AllMethods = []Method{
	MethodHistorical,
	MethodParametric,
	MethodMonteCarlo,
	MethodCornishFisher,
	MethodEWMA,
}

// ConfidenceInterval is a bootstrap interval around a VaR estimate.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// KupiecResult is the outcome of a proportion-of-failures backtest at one
// confidence level. The model is rejected when the observed violation rate is
// statistically inconsistent with the claimed confidence (p < 0.05).
type KupiecResult struct {
	Violations int     `json:"violations"`
	Expected   float64 `json:"expected"`
	LRStat     float64 `json:"lr_stat"`
	PValue     float64 `json:"p_value"`
	Rejected   bool    `json:"rejected"`
}

// VaRResult holds the dollar-denominated VaR/CVaR estimates for one method.
// Invariants: VaR99 >= VaR95 and CVaR >= VaR at each confidence level.
type VaRResult struct {
	Method Method  `json:"method"`
	VaR95  float64 `json:"var_95"`
	VaR99  float64 `json:"var_99"`
	CVaR95 float64 `json:"cvar_95"`
	CVaR99 float64 `json:"cvar_99"`

	// Bootstrap intervals, populated for the historical method only.
	CI95 *ConfidenceInterval `json:"ci_95,omitempty"`
	CI99 *ConfidenceInterval `json:"ci_99,omitempty"`

	Backtest95 *KupiecResult `json:"backtest_95,omitempty"`
	Backtest99 *KupiecResult `json:"backtest_99,omitempty"`

	// CVaRApproximated marks methods whose CVaR is a fixed multiple of VaR
	// (Cornish-Fisher and EWMA) rather than an exact tail expectation.
	CVaRApproximated bool `json:"cvar_approximated,omitempty"`

	// Degraded marks results produced by a fallback estimator, such as when
	// the Student-t fit does not converge. Callers can distinguish an exact
	// computation from a heuristic one.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}
