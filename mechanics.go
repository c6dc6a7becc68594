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
	"fmt"
	"math"
)

// Mechanics functions return math.NaN() when a value is not available for a
// breath, e.g. because a segment is empty.

// PIP returns the peak pressure of an inspiratory segment.
func PIP(pressure []float64) float64 {
	if len(pressure) == 0 {
		return math.NaN()
	}
	peak := pressure[0]
	for _, p := range pressure[1:] {
		peak = math.Max(peak, p)
	}
	return peak
}

// Maw returns the mean pressure of an inspiratory segment.
func Maw(pressure []float64) float64 {
	if len(pressure) == 0 {
		return math.NaN()
	}
	return mean(pressure)
}

// PEEP returns the mean of the last five pressures of an expiratory segment,
// or zero if the segment is empty.
func PEEP(pressure []float64) float64 {
	if len(pressure) == 0 {
		return 0
	}
	return mean(pressure[max(0, len(pressure)-5):])
}

// BoundPolicy selects when a plateau scan gives up: as soon as any flow
// sample of the window, or only when all of them, fall below the negative
// flow bound.
type BoundPolicy string

const (
	BoundAny BoundPolicy = "any"
	BoundAll BoundPolicy = "all"
)

// PlateauOptions tunes inspiratory plateau detection.
type PlateauOptions struct {
	MinTime   float64     `yaml:"min_time"`   // Seconds the flow must stay within the bound
	FlowBound float64     `yaml:"flow_bound"` // Symmetric flow tolerance around zero
	Policy    BoundPolicy `yaml:"policy"`     // Early exit policy, "any" or "all"
	LastN     int         `yaml:"last_n"`     // Samples averaged for the plateau pressure
}

// DefaultPlateauOptions returns the settings used for the PB-840, which holds
// an inspiratory pause for about half a second with flow sensors accurate to
// about 10%.
func DefaultPlateauOptions() PlateauOptions {
	return PlateauOptions{
		MinTime:   0.5,
		FlowBound: 0.2,
		Policy:    BoundAny,
		LastN:     5,
	}
}

func (o PlateauOptions) withDefaults() PlateauOptions {
	d := DefaultPlateauOptions()
	if o.MinTime == 0 {
		o.MinTime = d.MinTime
	}
	if o.FlowBound == 0 {
		o.FlowBound = d.FlowBound
	}
	if o.Policy == "" {
		o.Policy = d.Policy
	}
	if o.LastN == 0 {
		o.LastN = d.LastN
	}
	return o
}

// Validate reports unknown policies and non-positive windows.
func (o PlateauOptions) Validate() error {
	switch o.Policy {
	case BoundAny, BoundAll:
	default:
		return &ConfigurationError{Option: "plateau.policy", Reason: fmt.Sprintf("unknown policy %q, expected \"any\" or \"all\"", string(o.Policy))}
	}
	if o.MinTime <= 0 {
		return &ConfigurationError{Option: "plateau.min_time", Reason: "must be positive"}
	}
	if o.FlowBound <= 0 {
		return &ConfigurationError{Option: "plateau.flow_bound", Reason: "must be positive"}
	}
	if o.LastN < 1 {
		return &ConfigurationError{Option: "plateau.last_n", Reason: "must be at least 1"}
	}
	return nil
}

// Plateau is the result of a plateau search.
type Plateau struct {
	Found    bool
	Pressure float64 // NaN if not found
}

// plateauSkip is the number of leading samples never considered part of a
// plateau.
const plateauSkip = 10

// scanPlateau slides a window over the breath and returns the window starts
// of the first run of windows whose flow stays strictly within the bound. With
// firstOnly the first flat window is enough; otherwise the run must end before
// the last window.
func scanPlateau(flow []float64, dt float64, opts PlateauOptions, firstOnly bool) (bool, []int) {
	window := int(opts.MinTime / dt)
	if window <= 0 {
		return false, nil
	}

	var starts []int
	for idx := plateauSkip; idx < len(flow)-window; idx++ {
		w := flow[idx : idx+window]

		flat := true
		below := 0
		for _, f := range w {
			if !(f < opts.FlowBound && f > -opts.FlowBound) {
				flat = false
			}
			if f < -opts.FlowBound {
				below++
			}
		}

		if flat {
			if firstOnly {
				return true, []int{idx}
			}
			starts = append(starts, idx)
		} else if len(starts) > 0 {
			return true, starts
		}

		// The patient is exhaling, no plateau can follow.
		if (opts.Policy == BoundAny && below > 0) || (opts.Policy == BoundAll && below == len(w)) {
			break
		}
	}

	// A run still flat at the end of the scan never saw the pause end.
	return false, nil
}

// HasInspiratoryPlateau reports whether the breath holds near-zero flow for
// at least opts.MinTime.
func HasInspiratoryPlateau(flow, pressure []float64, dt float64, opts PlateauOptions) (bool, error) {
	if err := opts.Validate(); err != nil {
		return false, err
	}
	found, _ := scanPlateau(flow[:min(len(flow), len(pressure))], dt, opts, true)
	return found, nil
}

// InspiratoryPlateau finds an inspiratory pause and averages the pressure at
// its end.
func InspiratoryPlateau(flow, pressure []float64, dt float64, opts PlateauOptions) (Plateau, error) {
	if err := opts.Validate(); err != nil {
		return Plateau{Pressure: math.NaN()}, err
	}
	return inspiratoryPlateau(flow, pressure, dt, opts), nil
}

func inspiratoryPlateau(flow, pressure []float64, dt float64, opts PlateauOptions) Plateau {
	found, starts := scanPlateau(flow[:min(len(flow), len(pressure))], dt, opts, false)
	if !found {
		return Plateau{Pressure: math.NaN()}
	}

	window := int(opts.MinTime / dt)
	var lo, hi int
	if len(starts) > 1 {
		lo = starts[0] + window
		if len(starts) > opts.LastN {
			lo = starts[len(starts)-1-opts.LastN] + window
		}
		hi = starts[len(starts)-1] + window
	} else {
		lo = starts[0]
		hi = starts[0] + window
	}

	return Plateau{Found: true, Pressure: mean(pressure[lo:hi])}
}

// Expiratory plateau detection settings.
const (
	expPlateauMinTime   = 0.4
	expPlateauFlowBound = 0.3
)

// ExpiratoryPlateau looks for an expiratory pause after the point of minimum
// flow and returns the mean pressure of the five samples preceding its end.
func ExpiratoryPlateau(flow, pressure []float64, dt float64) float64 {
	n := min(len(flow), len(pressure))
	if n == 0 {
		return math.NaN()
	}

	minIdx := 0
	for i := 1; i < n; i++ {
		if flow[i] < flow[minIdx] {
			minIdx = i
		}
	}
	flow, pressure = flow[minIdx:n], pressure[minIdx:n]

	window := int(expPlateauMinTime / dt)
	found := false
	for idx := 0; idx < len(pressure)-window; idx++ {
		flat := true
		for _, f := range flow[idx : idx+window] {
			if !(f < expPlateauFlowBound && f > -expPlateauFlowBound) {
				flat = false
				break
			}
		}
		if flat {
			found = true
		} else if found {
			end := idx + window - 1
			return sum(pressure[max(0, end-5):end]) / 5
		}
	}
	if found {
		return sum(pressure[max(0, len(pressure)-5):]) / 5
	}
	return math.NaN()
}

// Resistance returns (pip - plat) / pif, NaN if pif is zero.
func Resistance(pif, pip, plat float64) float64 {
	if pif == 0 {
		return math.NaN()
	}
	return (pip - plat) / pif
}

// DynamicCompliance returns the compliance in L/cmH2O for an inspiratory
// volume in millilitres.
func DynamicCompliance(tvi, pip, peep float64) float64 {
	if pip == peep {
		return math.NaN()
	}
	return (tvi / 1000) / (pip - peep)
}

// PlateauFromTimeConstant estimates the plateau pressure from the time
// constant tau: peep + tvi*(pip-peep) / (tvi + tau*pif).
func PlateauFromTimeConstant(peep, pip, tvi, tau, pif float64) float64 {
	return peep + (tvi*(pip-peep))/(tvi+tau*pif)
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return sum(v) / float64(len(v))
}
