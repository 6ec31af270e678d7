// Package adjustment holds the pure factor math applied to a base payout:
// a reliability multiplier penalizing lateness and a quality multiplier
// derived from QC review scores. Both functions are total over their valid
// input ranges and deterministic.
package adjustment

import (
	"github.com/shopspring/decimal"

	"studiopay/pkg/errutil"
)

var (
	one = decimal.NewFromInt(1)

	// Lateness up to the grace threshold is free; beyond it the factor
	// decays linearly until the cap, where it bottoms out at the floor.
	graceLateMinutes = decimal.NewFromInt(30)
	lateMinutesCap   = decimal.NewFromInt(1440)
	reliabilityFloor = decimal.RequireFromString("0.5")

	// QC averages below meetsExpectations multiply the payout down, between
	// meetsExpectations and rewardThreshold the factor is neutral, and at or
	// above rewardThreshold it multiplies up.
	qcScale             = decimal.NewFromInt(5)
	meetsExpectations   = decimal.NewFromInt(3)
	rewardThreshold     = decimal.RequireFromString("4.5")
	qualityPenaltyFloor = decimal.RequireFromString("0.7")
	qualityBonusCeiling = decimal.RequireFromString("1.1")
)

// ReliabilityFactor maps accumulated lateness in minutes to a multiplier in
// (0, 1]. It is 1.0 for lateness within the grace threshold, decays linearly
// to the floor at the lateness cap, and is clamped at the floor beyond it.
func ReliabilityFactor(lateMinutes decimal.Decimal) (decimal.Decimal, error) {
	if lateMinutes.IsNegative() {
		return decimal.Zero, errutil.ValidationFailed("late minutes must not be negative", nil)
	}

	switch {
	case lateMinutes.LessThanOrEqual(graceLateMinutes):
		return one, nil
	case lateMinutes.GreaterThanOrEqual(lateMinutesCap):
		return reliabilityFloor, nil
	}

	span := lateMinutesCap.Sub(graceLateMinutes)
	progress := lateMinutes.Sub(graceLateMinutes).Div(span)
	return one.Sub(progress.Mul(one.Sub(reliabilityFloor))).Round(4), nil
}

// QualityFactor maps a QC average in [0, 5] to a multiplier around 1.0.
// The mapping is piecewise linear and monotonically non-decreasing.
func QualityFactor(qcAverage decimal.Decimal) (decimal.Decimal, error) {
	if qcAverage.IsNegative() || qcAverage.GreaterThan(qcScale) {
		return decimal.Zero, errutil.ValidationFailed("qc average must be within [0, 5]", nil)
	}

	switch {
	case qcAverage.LessThan(meetsExpectations):
		ratio := qcAverage.Div(meetsExpectations)
		return qualityPenaltyFloor.Add(ratio.Mul(one.Sub(qualityPenaltyFloor))).Round(4), nil
	case qcAverage.LessThan(rewardThreshold):
		return one, nil
	default:
		ratio := qcAverage.Sub(rewardThreshold).Div(qcScale.Sub(rewardThreshold))
		return one.Add(ratio.Mul(qualityBonusCeiling.Sub(one))).Round(4), nil
	}
}
