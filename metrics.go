// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ventmap

import (
	"math"
	"strconv"
)

// Metrics are the respiratory mechanics derived from one breath. Values that
// cannot be computed are NaN.
type Metrics struct {
	X0          X0
	ITime       float64 // Inspiratory time (s)
	ETime       float64 // Expiratory time (s)
	IERatio     float64
	RR          float64 // Instantaneous respiratory rate (breaths/min)
	TVi         float64 // Inspiratory tidal volume (mL)
	TVe         float64 // Expiratory tidal volume (mL)
	TVRatio     float64 // |TVe| / TVi
	MaxF        float64
	MinF        float64
	MaxP        float64
	PIP         float64
	Maw         float64
	PEEP        float64
	IPAUC       float64 // Inspiratory pressure area
	EPAUC       float64 // Expiratory pressure area
	TVi1        float64 // Volumes split at the first zero crossing
	TVe1        float64
	TVi2        float64 // Volumes split at the end of the largest inspiration
	TVe2        float64
	MinPressure float64 // Minimum inspiratory pressure after the first five samples

	Experimental *ExperimentalMetrics // nil unless requested
}

// ExperimentalMetrics are supplemental estimators still under evaluation.
type ExperimentalMetrics struct {
	SlopeMinFToZero        float64
	SlopeMinFToZeroOffset  float64 // Slope measured 0.16 s after the minimum flow
	MeanFlowFromPEF        float64
	DynCompliance          float64 // L/cmH2O
	VolAt05                float64 // Expiratory volume after 0.5 s
	VolAt076               float64 // Expiratory volume after 0.76 s
	VolAt1                 float64 // Expiratory volume after 1 s
	PressureITime4         float64
	PressureITime5         float64
	PressureITime6         float64
	PressureITimeByPIP5    float64
	PressureITimeByPIP6    float64
	PressureITimeFromFront float64
	Plateau                Plateau
	ExpPlateau             float64
	Resistance             float64 // cmH2O/L/s
	PressureITimeDynamic   float64
}

// Fixed parameters of the experimental estimators.
const (
	pefTimeOffset     = 0.16
	frontThresholdPct = 0.4
	dynThresholdPct   = 0.4
)

// ComputeMetrics derives the mechanics of a breath. TVe is reported as a
// magnitude unless signedTVe is set. Experimental metrics are only computed
// when plateau options are given.
func ComputeMetrics(b *Breath, signedTVe bool, plateau *PlateauOptions) (Metrics, error) {
	if plateau != nil {
		if err := plateau.Validate(); err != nil {
			return Metrics{}, err
		}
	}
	return computeMetrics(b, signedTVe, plateau), nil
}

// computeMetrics expects plateau, if given, to be valid.
func computeMetrics(b *Breath, signedTVe bool, plateau *PlateauOptions) Metrics {
	flow, pressure, dt := b.Flow, b.Pressure, b.DT

	var m Metrics
	m.X0 = FindX0(flow, dt)
	x0 := m.X0.Index

	m.ITime = roundTo(float64(x0)*dt, 2)
	m.ETime = roundTo(b.FrameDur-m.ITime, 2)
	m.IERatio = math.NaN()
	if m.ETime != 0 {
		m.IERatio = roundTo(m.ITime/m.ETime, 5)
	}
	m.RR = math.NaN()
	if b.FrameDur != 0 {
		m.RR = 60 / b.FrameDur
	}

	iFlow, eFlow := flow[:x0], flow[x0:]
	iPressure, ePressure := pressure[:x0], pressure[x0:]

	m.PIP = PIP(iPressure)
	m.Maw = Maw(iPressure)
	m.PEEP = PEEP(ePressure)

	m.TVi = FlowVolume(iFlow, dt)
	m.TVe = FlowVolume(eFlow, dt)
	m.TVRatio = math.NaN()
	if m.TVi != 0 {
		m.TVRatio = math.Abs(m.TVe) / m.TVi
	}

	m.IPAUC = pressureArea(iPressure, dt)
	m.EPAUC = pressureArea(ePressure, dt)
	m.MaxP = maximum(pressure)
	m.MaxF = maximum(flow)
	m.MinF = minimum(flow)

	m.TVi1, m.TVe1 = splitVolumes(flow, dt, m.X0.Crossing)
	m.TVi2, m.TVe2 = splitVolumes(flow, dt, m.X0.LargestInspiration)

	if !signedTVe {
		m.TVe = math.Abs(m.TVe)
		m.TVe1 = math.Abs(m.TVe1)
		m.TVe2 = math.Abs(m.TVe2)
	}

	m.MinPressure = math.NaN()
	if x0 > 5 {
		m.MinPressure = roundTo(minimum(pressure[5:x0]), 2)
	}

	if plateau != nil {
		m.Experimental = computeExperimental(b, &m, *plateau)
	}
	return m
}

func computeExperimental(b *Breath, m *Metrics, opts PlateauOptions) *ExperimentalMetrics {
	flow, pressure, dt := b.Flow, b.Pressure, b.DT
	eFlow := flow[m.X0.Index:]

	plat := inspiratoryPlateau(flow, pressure, dt, opts)

	e := &ExperimentalMetrics{
		SlopeMinFToZero:        SlopeMinFlowToZero(flow, dt, m.MinF, 0),
		SlopeMinFToZeroOffset:  SlopeMinFlowToZero(flow, dt, m.MinF, pefTimeOffset),
		MeanFlowFromPEF:        MeanFlowFromPEF(flow, dt, m.MinF, pefTimeOffset),
		DynCompliance:          DynamicCompliance(m.TVi, m.PIP, m.PEEP),
		VolAt05:                FlowVolume(eFlow[:min(len(eFlow), int(0.5/dt))], dt),
		VolAt076:               FlowVolume(eFlow[:min(len(eFlow), int(0.76/dt))], dt),
		VolAt1:                 FlowVolume(eFlow[:min(len(eFlow), int(1/dt))], dt),
		PressureITime4:         PressureITime(pressure, dt, m.PEEP, 4),
		PressureITime5:         PressureITime(pressure, dt, m.PEEP, 5),
		PressureITime6:         PressureITime(pressure, dt, m.PEEP, 6),
		PressureITimeByPIP5:    PressureITimeByPIP(pressure, dt, m.PIP, 5),
		PressureITimeByPIP6:    PressureITimeByPIP(pressure, dt, m.PIP, 6),
		PressureITimeFromFront: PressureITimeFromFront(pressure, dt, m.PIP, m.PEEP, frontThresholdPct),
		Plateau:                plat,
		ExpPlateau:             ExpiratoryPlateau(flow, pressure, dt),
		Resistance:             math.NaN(),
		PressureITimeDynamic:   PressureITimeByDynamicThreshold(pressure, dt, m.PIP, m.PEEP, dynThresholdPct),
	}
	if plat.Found {
		// Flow is recorded in L/min, resistance is reported per L/s.
		e.Resistance = Resistance(m.MaxF/60, m.PIP, plat.Pressure)
	}

	return e
}

// splitVolumes integrates the flow before idx and from idx up to, but not
// including, the last sample.
func splitVolumes(flow []float64, dt float64, idx int) (tvi, tve float64) {
	tvi = FlowVolume(flow[:idx], dt)
	if idx < len(flow)-1 {
		tve = FlowVolume(flow[idx:len(flow)-1], dt)
	}
	return tvi, tve
}

func pressureArea(pressure []float64, dt float64) float64 {
	if len(pressure) == 0 {
		return 0
	}
	return Simpson(pressure, dt)
}

func maximum(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	high := v[0]
	for _, x := range v[1:] {
		high = math.Max(high, x)
	}
	return high
}

func minimum(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	low := v[0]
	for _, x := range v[1:] {
		low = math.Min(low, x)
	}
	return low
}

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
