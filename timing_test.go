// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ventmap_test

import (
	"math"
	"testing"

	"github.com/OpenPSG/ventmap"
	"github.com/stretchr/testify/assert"
)

func TestInspiratoryTime(t *testing.T) {
	pressure := []float64{5, 10, 20, 20, 15, 10, 5, 5}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"PEEP", ventmap.PressureITime(pressure, 0.02, 5, 4), 0.1},
		{"ZeroPEEP", ventmap.PressureITime(pressure, 0.02, 0, 4), 0.14},
		{"PIP", ventmap.PressureITimeByPIP(pressure, 0.02, 20, 5), 0.08},
		{"DynamicThreshold", ventmap.PressureITimeByDynamicThreshold(pressure, 0.02, 20, 5, 0.4), 0.08},
		{"FromFront", ventmap.PressureITimeFromFront(pressure, 0.02, 20, 5, 0.4), 0.12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got, 1e-12)
		})
	}

	assert.True(t, math.IsNaN(ventmap.PressureITime(nil, 0.02, 5, 4)))
	assert.True(t, math.IsNaN(ventmap.PressureITimeByPIP(pressure, 0.02, 50, 5)))
	assert.True(t, math.IsNaN(ventmap.PressureITimeFromFront(repeat(20, 5), 0.02, 20, 5, 0.4)))
}

func TestSlopeMinFlowToZero(t *testing.T) {
	flow := []float64{10, -30, -20, -10, -1, 0.5, -3}

	// From -30 at 0.02 s to -1 at 0.08 s.
	assert.InDelta(t, 29/0.06, ventmap.SlopeMinFlowToZero(flow, 0.02, -30, 0), 1e-9)

	// The first near-zero sample wins over later ones closer to zero.
	decay := []float64{-30, -20, -10, -1.9, -1.5, -1, -0.5, 0}
	assert.InDelta(t, 28.1/0.06, ventmap.SlopeMinFlowToZero(decay, 0.02, -30, 0), 1e-9)

	noZero := []float64{10, -30, -20, -10}
	assert.True(t, math.IsNaN(ventmap.SlopeMinFlowToZero(noZero, 0.02, -30, 0)))
	assert.True(t, math.IsNaN(ventmap.SlopeMinFlowToZero(flow, 0.02, -99, 0)))
}

func TestMeanFlowFromPEF(t *testing.T) {
	flow := []float64{10, -30, -20, -10, -1, 0.5, -3}

	assert.InDelta(t, -63.5/6, ventmap.MeanFlowFromPEF(flow, 0.02, -30, 0), 1e-12)
	assert.True(t, math.IsNaN(ventmap.MeanFlowFromPEF(flow, 0.02, -30, 1)))
}
