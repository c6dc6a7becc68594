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
	"testing"

	"github.com/OpenPSG/ventmap"
	"github.com/stretchr/testify/assert"
)

func TestFindX0(t *testing.T) {
	t.Run("Step", func(t *testing.T) {
		flow, _ := stepBreath()
		assert.Equal(t, ventmap.X0{Index: 10, Crossing: 10, LargestInspiration: 10}, ventmap.FindX0(flow, 0.02))
	})

	t.Run("EarlyCrossing", func(t *testing.T) {
		// A short dip ahead of the main inspiration.
		flow := concat(repeat(10, 5), repeat(-20, 5), repeat(40, 10), repeat(-20, 5))
		assert.Equal(t, ventmap.X0{Index: 20, Crossing: 5, LargestInspiration: 20}, ventmap.FindX0(flow, 0.02))
	})

	t.Run("NoExpiration", func(t *testing.T) {
		flow := repeat(40, 10)
		assert.Equal(t, ventmap.X0{Index: 9, Crossing: 9, LargestInspiration: 9}, ventmap.FindX0(flow, 0.02))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, ventmap.X0{}, ventmap.FindX0(nil, 0.02))
	})
}

func TestZeroCrossings(t *testing.T) {
	flow := concat(repeat(40, 10), repeat(-20, 5), repeat(40, 5), repeat(-20, 10))

	// 0.2 s apart.
	assert.Equal(t, []int{10}, ventmap.ZeroCrossings(flow, 0.02, ventmap.CrossingMergeWindow))
	// 1 s apart.
	assert.Equal(t, []int{10, 20}, ventmap.ZeroCrossings(flow, 0.1, ventmap.CrossingMergeWindow))

	// A small negative blip that recovers is noise.
	noise := concat(repeat(40, 10), []float64{-1, 2, 3}, repeat(40, 5))
	assert.Empty(t, ventmap.ZeroCrossings(noise, 0.02, ventmap.CrossingMergeWindow))

	// Five small negative samples in a row confirm a crossing.
	slow := concat(repeat(40, 10), repeat(-1, 6))
	assert.Equal(t, []int{10}, ventmap.ZeroCrossings(slow, 0.02, ventmap.CrossingMergeWindow))
}

func TestLargestInspiration(t *testing.T) {
	flow := concat(repeat(10, 5), repeat(-20, 5), repeat(40, 10), repeat(-20, 5))

	idx, ok := ventmap.LargestInspiration(flow, 0.02)
	assert.True(t, ok)
	assert.Equal(t, 20, idx)

	_, ok = ventmap.LargestInspiration(repeat(40, 10), 0.02)
	assert.False(t, ok)
}
