package stats

import "gonum.org/v1/gonum/stat/distuv"

// ZVal is the two-tailed standard normal quantile for a confidence level
// given in percent, e.g. 1.96 for 95.
func ZVal(pct float64) float64 {
	std := distuv.UnitNormal
	return std.Quantile((1 + pct/100) / 2)
}
