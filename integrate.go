// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ventmap

// flowToVolume converts an integral of L/min over seconds into millilitres.
const flowToVolume = 1000.0 / 60.0

// Simpson integrates evenly spaced samples with the composite Simpson rule.
// With an even number of samples the result is the average of Simpson over
// the first n-1 samples plus a trapezoid on the last interval, and a
// trapezoid on the first interval plus Simpson over the last n-1 samples.
// Fewer than two samples integrate to zero.
func Simpson(y []float64, dx float64) float64 {
	n := len(y)
	if n < 2 {
		return 0
	}
	if n%2 == 1 {
		return simpsonPanels(y, 0, n-1, dx)
	}

	first := simpsonPanels(y, 0, n-2, dx) + 0.5*dx*(y[n-1]+y[n-2])
	last := 0.5*dx*(y[1]+y[0]) + simpsonPanels(y, 1, n-1, dx)
	return (first + last) / 2
}

// simpsonPanels applies Simpson's rule over y[from..to], to-from even.
func simpsonPanels(y []float64, from, to int, dx float64) float64 {
	var sum float64
	for i := from; i+2 <= to; i += 2 {
		sum += y[i] + 4*y[i+1] + y[i+2]
	}
	return sum * dx / 3
}

// Trapezoid integrates evenly spaced samples with the trapezoidal rule.
func Trapezoid(y []float64, dx float64) float64 {
	var sum float64
	for i := 1; i < len(y); i++ {
		sum += (y[i-1] + y[i]) * dx / 2
	}
	return sum
}

// FlowVolume integrates a flow segment in L/min and returns the volume in
// millilitres. An empty segment has zero volume.
func FlowVolume(flow []float64, dt float64) float64 {
	if len(flow) == 0 {
		return 0
	}
	return Simpson(flow, dt) * flowToVolume
}

// SignedVolumes sums the volumes of the positive flow runs that end before
// x0 and of the non-positive runs that end at or after it. The final run of
// the breath is never closed and does not contribute.
func SignedVolumes(flow []float64, dt float64, x0 int) (tvi, tve float64) {
	start := 0
	for i := 0; i+1 < len(flow); i++ {
		pos := flow[i] > 0
		if pos == (flow[i+1] > 0) {
			continue
		}
		vol := FlowVolume(flow[start:i+1], dt)
		if i < x0 && pos {
			tvi += vol
		} else if i >= x0 && !pos {
			tve += vol
		}
		start = i + 1
	}
	return tvi, tve
}
