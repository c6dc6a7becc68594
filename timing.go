// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ventmap

import "math"

// Each inspiratory time estimator below is independent; none falls back to
// another. Inspiration is assumed to start at the first sample.

// PressureITime returns the time of the last sample at or above
// peep+threshold. With a zero PEEP the whole breath is counted.
func PressureITime(pressure []float64, dt, peep, threshold float64) float64 {
	if len(pressure) == 0 {
		return math.NaN()
	}
	if peep == 0 {
		return float64(len(pressure)-1) * dt
	}
	return lastAtOrAbove(pressure, dt, peep+threshold)
}

// PressureITimeByPIP returns the time of the last sample at or above
// pip-threshold.
func PressureITimeByPIP(pressure []float64, dt, pip, threshold float64) float64 {
	return lastAtOrAbove(pressure, dt, pip-threshold)
}

// PressureITimeByDynamicThreshold is PressureITimeByPIP with a threshold of
// frac*(pip-peep). It is more robust against asynchrony when fed median PIP
// and PEEP values.
func PressureITimeByDynamicThreshold(pressure []float64, dt, pip, peep, frac float64) float64 {
	return PressureITimeByPIP(pressure, dt, pip, (pip-peep)*frac)
}

// PressureITimeFromFront scans forward for the pressure to rise to within
// frac*(pip-peep) of PIP and then fall below it again, returning the time of
// the sample after the fall.
func PressureITimeFromFront(pressure []float64, dt, pip, peep, frac float64) float64 {
	if len(pressure) == 0 {
		return math.NaN()
	}
	level := pip - (pip-peep)*frac

	passed := false
	for idx, p := range pressure {
		if !passed && p >= level {
			passed = true
		} else if passed && p < level {
			last := idx
			if idx+1 < len(pressure) {
				last = idx + 1
			}
			return float64(last) * dt
		}
	}
	return math.NaN()
}

func lastAtOrAbove(pressure []float64, dt, level float64) float64 {
	for idx := len(pressure) - 1; idx >= 0; idx-- {
		if pressure[idx] >= level {
			return float64(idx) * dt
		}
	}
	return math.NaN()
}

// nearZeroFlow is the flow magnitude treated as zero when looking for the
// end of expiration.
const nearZeroFlow = 2

// SlopeMinFlowToZero returns the slope from the minimum flow (offset by
// tOffset seconds) to the first subsequent sample within nearZeroFlow of zero,
// a surrogate for the expiratory time constant. It is NaN when no sample within
// nearZeroFlow follows, or when the slope would be negative.
func SlopeMinFlowToZero(flow []float64, dt, minF, tOffset float64) float64 {
	start := indexOf(flow, minF)
	if start < 0 {
		return math.NaN()
	}
	start += int(tOffset / dt)
	if start >= len(flow) {
		return math.NaN()
	}

	zero := -1
	for idx := start; idx < len(flow); idx++ {
		if math.Abs(flow[idx]) < nearZeroFlow {
			zero = idx
			break
		}
	}
	if zero < 0 {
		return math.NaN()
	}

	dtime := float64(zero)*dt - float64(start)*dt
	if dtime == 0 {
		return math.NaN()
	}

	slope := (flow[zero] - flow[start]) / dtime
	if slope < 0 {
		return math.NaN()
	}
	return slope
}

// MeanFlowFromPEF returns the mean flow from the peak expiratory flow,
// offset by tOffset seconds, to the end of the breath.
func MeanFlowFromPEF(flow []float64, dt, pef, tOffset float64) float64 {
	start := indexOf(flow, pef)
	if start < 0 {
		return math.NaN()
	}
	start += int(tOffset / dt)
	if start >= len(flow) {
		return math.NaN()
	}
	return mean(flow[start:])
}

func indexOf(v []float64, x float64) int {
	for i, y := range v {
		if y == x {
			return i
		}
	}
	return -1
}
