package core

import (
	"log/slog"
	"math"
)

// Distribute spreads amount over the horizon according to the chosen
// method. The result is a sparse month-index → amount mapping.
//
// Malformed parameters never surface as an error: the function returns
// an empty (or best-effort partial) mapping and reports the problem via
// a non-fatal log entry, so a batch recompute over all categories is
// never aborted by a single bad category.
func Distribute(amount float64, method Method, params DistributionParams, horizon int) map[int]float64 {
	switch method {
	case MethodSCurve:
		return distributeSCurve(amount, params, horizon)
	case MethodManual:
		return distributeManual(params)
	case MethodStraightLine:
		return distributeStraightLine(amount, params, horizon)
	default:
		// Unknown methods fall back to straight-line. A typo in the
		// method field therefore degrades silently; see DESIGN.md.
		return distributeStraightLine(amount, params, horizon)
	}
}

// distributeStraightLine spreads amount evenly over duration months
// starting at startMonth. Months past the horizon are dropped, so a
// distribution crossing the boundary deliberately under-delivers.
func distributeStraightLine(amount float64, params DistributionParams, horizon int) map[int]float64 {
	out := make(map[int]float64)
	if !distributable(amount, params, horizon) {
		return out
	}

	monthly := amount / float64(params.Duration)
	for m := 0; m < params.Duration; m++ {
		idx := params.StartMonth + m
		if idx < 0 {
			continue
		}
		if idx >= horizon {
			break
		}
		out[idx] = monthly
	}
	return out
}

// distributeSCurve allocates amount along a logistic curve. Weights are
// normalized to sum to amount before the startMonth shift and horizon
// truncation, so truncated curves keep the untruncated shape and sum to
// less than the nominal amount.
func distributeSCurve(amount float64, params DistributionParams, horizon int) map[int]float64 {
	out := make(map[int]float64)
	if !distributable(amount, params, horizon) {
		return out
	}

	duration := float64(params.Duration)
	steepness := float64(params.Intensity) * 0.5
	half := duration / 2

	weights := make([]float64, params.Duration)
	var sum float64
	for m := 0; m < params.Duration; m++ {
		x := float64(m) - half
		w := 1 / (1 + math.Exp(-steepness*x/half))
		weights[m] = w
		sum += w
	}
	if sum == 0 {
		slog.Warn("s-curve weights sum to zero, skipping distribution",
			"intensity", params.Intensity, "duration", params.Duration)
		return out
	}

	for m := 0; m < params.Duration; m++ {
		idx := params.StartMonth + m
		if idx < 0 {
			continue
		}
		if idx >= horizon {
			break
		}
		out[idx] = weights[m] / sum * amount
	}
	return out
}

// distributeManual returns the caller-supplied month map verbatim.
// Manual mode deliberately allows the total to diverge from the nominal
// amount, so there is no normalization and no validation here.
func distributeManual(params DistributionParams) map[int]float64 {
	if params.ManualDistribution == nil {
		return map[int]float64{}
	}
	return cloneMonths(params.ManualDistribution)
}

func distributable(amount float64, params DistributionParams, horizon int) bool {
	if params.Duration < 1 || horizon < 1 || amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		slog.Warn("distribution parameters rejected, returning empty allocation",
			"amount", amount,
			"start_month", params.StartMonth,
			"duration", params.Duration,
			"horizon", horizon)
		return false
	}
	return true
}
