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

// CrossingMergeWindow is the time within which later zero crossings are
// folded into the first one.
const CrossingMergeWindow = 0.5

// X0 is the inspiratory/expiratory boundary of a breath.
type X0 struct {
	Index              int // Later of the two candidates
	Crossing           int // First confirmed zero crossing
	LargestInspiration int // End of the positive run with the largest volume
}

// FindX0 locates the boundary between inspiration and expiration. Early
// crossings caused by sensor noise shorten inspiration, so the later of the
// two candidates wins. A candidate that finds nothing falls back to the last
// sample.
func FindX0(flow []float64, dt float64) X0 {
	if len(flow) == 0 {
		return X0{}
	}
	last := len(flow) - 1

	x0 := X0{Crossing: last, LargestInspiration: last}
	if crossings := ZeroCrossings(flow, dt, CrossingMergeWindow); len(crossings) > 0 {
		x0.Crossing = crossings[0]
	}
	if idx, ok := LargestInspiration(flow, dt); ok {
		x0.LargestInspiration = idx
	}

	x0.Index = x0.Crossing
	if x0.LargestInspiration > x0.Crossing {
		x0.Index = x0.LargestInspiration
	}
	return x0
}

// ZeroCrossings returns the indices of the first negative sample after each
// confirmed transition from non-negative to negative flow. A transition is
// confirmed if the flow keeps falling: a sample at or below -5 within the
// next few samples, or five negative samples in a row. Crossings closer than
// mergeWindow seconds to the previous kept crossing are dropped.
func ZeroCrossings(flow []float64, dt, mergeWindow float64) []int {
	at := func(i int) float64 {
		if i < len(flow) {
			return flow[i]
		}
		return math.NaN()
	}

	var crossings []int
	for i := 0; i+1 < len(flow); i++ {
		if !(flow[i] >= 0) {
			continue
		}
		next := flow[i+1]
		switch {
		case next <= -5 && at(i+2) < 0,
			next < 0 && at(i+4) <= -5,
			next < 0 && at(i+2) <= -5,
			next < 0 && at(i+2) < 0 && at(i+3) < 0 && at(i+4) < 0 && at(i+5) < 0:
			crossings = append(crossings, i+1)
		}
	}

	for i := 0; i+1 < len(crossings); {
		if math.Abs(float64(crossings[i])*dt-float64(crossings[i+1])*dt) < mergeWindow {
			crossings = append(crossings[:i+1], crossings[i+2:]...)
		} else {
			i++
		}
	}

	return crossings
}

// LargestInspiration splits the flow into runs of positive and non-positive
// samples and returns the index just past the positive run with the largest
// volume. The final run is never closed, so a breath that never turns
// negative has no candidate.
func LargestInspiration(flow []float64, dt float64) (int, bool) {
	var (
		start   int
		largest float64
		idx     = -1
	)
	for i := 0; i+1 < len(flow); i++ {
		pos := flow[i] > 0
		if pos == (flow[i+1] > 0) {
			continue
		}
		if pos {
			if vol := FlowVolume(flow[start:i+1], dt); vol > largest {
				largest = vol
				idx = i + 1
			}
		}
		start = i + 1
	}
	return idx, idx >= 0
}
