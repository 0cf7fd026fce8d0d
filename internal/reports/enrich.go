package reports

import "math"

// BlankLabel is the sentinel appended when a primary label sequence is
// shorter than its comparison counterpart.
const BlankLabel = "__blank__"

// PercentChange computes the relative change between a comparison value and
// the current one, rounded to whole percent. A missing comparison yields nil;
// growth from zero caps at 100.
func PercentChange(old *float64, current float64) *int {
	if old == nil {
		return nil
	}
	var change int
	switch {
	case *old == 0 && current > 0:
		change = 100
	case *old == 0:
		change = 0
	default:
		change = int(math.Round((current - *old) / *old * 100))
	}
	return &change
}

// BounceRateChange is an absolute point difference, not a ratio. A zero or
// missing comparison rate yields nil.
func BounceRateChange(old *float64, current float64) *int {
	if old == nil || *old == 0 {
		return nil
	}
	change := int(math.Round(current - *old))
	return &change
}

// CalculateCR computes a conversion rate to one decimal. An empty
// denominator is a 0.0 rate; an absent denominator (no comparison context)
// propagates as nil.
func CalculateCR(total *float64, converted float64) *float64 {
	if total == nil {
		return nil
	}
	rate := 0.0
	if *total > 0 {
		rate = math.Round(converted / *total * 1000) / 10
	}
	return &rate
}

// PercentageOfTotal splits row values into integer shares of their sum.
// Rounding is per row, so the shares may drift from 100 by at most the row
// count.
func PercentageOfTotal(values []float64) []int {
	var sum float64
	for _, v := range values {
		sum += v
	}

	shares := make([]int, len(values))
	if sum == 0 {
		return shares
	}
	for i, v := range values {
		shares[i] = int(math.Round(v / sum * 100))
	}
	return shares
}

// PadLabels right-pads the shorter primary sequence with the blank sentinel
// when inclusive boundary differences leave the comparison sequence longer.
// The longer sequence is never truncated.
func PadLabels(primary, comparison []string) []string {
	for len(primary) < len(comparison) {
		primary = append(primary, BlankLabel)
	}
	return primary
}

func floatPtr(v float64) *float64 {
	return &v
}
