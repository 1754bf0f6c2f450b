package ingest

import (
	"fmt"

	"github.com/arcline/adsync/internal/util"
)

// ParityResult is the outcome of comparing SDK totals against pipeline
// totals for the same window
type ParityResult struct {
	Passed     bool
	Mismatches []string
}

// Compare checks the SDK engine's aggregate totals against the pipeline
// engine's for the same window. tolerance is relative (0.01 = 1%); a
// metric where both sides are zero always matches.
func Compare(sdk, pipeline Totals, tolerance float64) ParityResult {
	result := ParityResult{Passed: true}

	check := func(name string, a, b float64) {
		if !withinTolerance(a, b, tolerance) {
			result.Passed = false
			result.Mismatches = append(result.Mismatches,
				fmt.Sprintf("%s: sdk=%.2f pipeline=%.2f", name, a, b))
		}
	}

	check("impressions", float64(sdk.Impressions), float64(pipeline.Impressions))
	check("clicks", float64(sdk.Clicks), float64(pipeline.Clicks))
	check("cost_micros", float64(sdk.CostMicros), float64(pipeline.CostMicros))
	check("conversions", sdk.Conversions, pipeline.Conversions)
	check("conversions_value", sdk.ConversionsValue, pipeline.ConversionsValue)

	return result
}

// withinTolerance compares two values with a relative tolerance scaled by
// the larger magnitude
func withinTolerance(a, b, tolerance float64) bool {
	diff := util.AbsFloat64(a - b)
	if diff == 0 {
		return true
	}

	scale := util.AbsFloat64(a)
	if util.AbsFloat64(b) > scale {
		scale = util.AbsFloat64(b)
	}
	return diff <= scale*tolerance
}
