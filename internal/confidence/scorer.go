package confidence

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Component is one weighted contributor to a composite confidence score.
// Value is normalized to 0..1; Evidence explains where it came from.
type Component struct {
	Name     string
	Weight   float64
	Value    float64
	Evidence string
}

// Score is a composite confidence (0-100) with the evidence that explains it.
// A Score always carries at least one evidence string.
type Score struct {
	Value    int      `json:"value"`
	Evidence []string `json:"evidence"`
}

// Compose combines weighted components into a 0-100 score capped at ceiling.
// Weights are normalized so callers can pass relative weights.
func Compose(components []Component, ceiling int) Score {
	if ceiling <= 0 || ceiling > 100 {
		ceiling = 100
	}

	var weightSum, total float64
	evidence := make([]string, 0, len(components))
	for _, c := range components {
		if c.Weight <= 0 {
			continue
		}
		v := c.Value
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		weightSum += c.Weight
		total += c.Weight * v
		if c.Evidence != "" {
			evidence = append(evidence, c.Evidence)
		}
	}

	value := 0
	if weightSum > 0 {
		value = int(math.Round(total / weightSum * 100))
	}
	if value > ceiling {
		value = ceiling
		evidence = append(evidence, fmt.Sprintf("confidence capped at tier ceiling %d", ceiling))
	}
	if len(evidence) == 0 {
		evidence = append(evidence, "no scoring components available")
	}

	return Score{Value: value, Evidence: evidence}
}

// AbsoluteDifference returns |a - b| computed in decimal arithmetic.
func AbsoluteDifference(a, b float64) float64 {
	diff, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().Float64()
	return diff
}

// PercentVariance returns |a - b| as a percentage of the larger magnitude of
// the two values. Returns 0 when both values are 0.
func PercentVariance(a, b float64) float64 {
	da := decimal.NewFromFloat(a)
	db := decimal.NewFromFloat(b)

	base := da.Abs()
	if db.Abs().GreaterThan(base) {
		base = db.Abs()
	}
	if base.IsZero() {
		return 0
	}

	pct, _ := da.Sub(db).Abs().Div(base).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// Closeness maps a numeric deviation onto 0..1: 1 when the deviation is zero,
// 0 when it reaches or exceeds the tolerance.
func Closeness(difference, tolerance float64) float64 {
	if tolerance <= 0 {
		if difference == 0 {
			return 1
		}
		return 0
	}
	v := 1 - math.Abs(difference)/tolerance
	if v < 0 {
		return 0
	}
	return v
}
