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
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Breath start inference parameters.
const (
	markFlowMin          = 10 // L/min
	markFlowRise         = 5  // L/min over markRiseSamples
	markRiseSamples      = 4
	markLookback         = 4
	markLookbackFallback = 2
	markPEEPSamples      = 5
	markBufferLen        = 25
	markPressureFrac     = 0.7
)

// MarkBreaths reads a two column export without BS/BE sentinels and writes it
// back with inferred sentinels, ready for Open. Breaths are numbered from 1.
//
// A breath starts where flow rises past markFlowMin quickly enough while the
// previous breath has already ended, moved back to the first sample after
// the last negative flow. Running medians of the PEEP and PIP of recent
// breaths decide when a breath has ended. Samples before the first inferred
// start are dropped; a timestamp header line is kept.
func MarkBreaths(dst io.Writer, src io.Reader) error {
	scanner := bufio.NewScanner(src)
	writer := bufio.NewWriter(dst)

	var obs [][2]float64
	line := 0
	for scanner.Scan() {
		line++
		text := strings.ReplaceAll(scanner.Text(), "\x00", "")

		if line == 1 && DetectLayout(text).TimestampHeader {
			if _, err := writer.WriteString(strings.TrimSpace(text) + "\n"); err != nil {
				return err
			}
			continue
		}

		// Column headers and other unparsable rows carry no samples.
		row := strings.Split(strings.Trim(strings.TrimSpace(text), ","), ",")
		if len(row) < 2 {
			continue
		}
		flow, err := strconv.ParseFloat(strings.TrimSpace(row[len(row)-2]), 64)
		if err != nil {
			continue
		}
		pressure, err := strconv.ParseFloat(strings.TrimSpace(row[len(row)-1]), 64)
		if err != nil {
			continue
		}
		obs = append(obs, [2]float64{flow, pressure})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading line %d: %w", line+1, err)
	}

	for i, s := range inferBreaths(obs) {
		if _, err := fmt.Fprintf(writer, "BS, S:%d,\n", i+1); err != nil {
			return err
		}
		for _, o := range obs[s.start:s.end] {
			sample := strconv.FormatFloat(o[0], 'f', -1, 64) + ", " + strconv.FormatFloat(o[1], 'f', -1, 64) + "\n"
			if _, err := writer.WriteString(sample); err != nil {
				return err
			}
		}
		if _, err := writer.WriteString("BE\n"); err != nil {
			return err
		}
	}

	return writer.Flush()
}

type span struct {
	start, end int
}

// inferBreaths splits [flow, pressure] observations into breaths.
func inferBreaths(obs [][2]float64) []span {
	var (
		spans      []span
		lastBS     = -1
		curBS      = -1
		searching  = true
		medianPEEP = 0.0
		medianPIP  = 100.0
		peeps      []float64
		pips       []float64
	)

	for idx := markRiseSamples; idx < len(obs); idx++ {
		flow, pressure := obs[idx][0], obs[idx][1]
		rise := flow - obs[idx-markRiseSamples][0]
		level := medianPEEP + (medianPIP-medianPEEP)*markPressureFrac

		if pressure >= level {
			searching = false
		}

		if searching && flow >= markFlowMin && rise >= markFlowRise {
			searching = false

			lastBS = curBS
			curBS = idx - markLookbackFallback
			for offset := 0; offset < markLookback; offset++ {
				if obs[idx-offset-1][0] < 0 {
					curBS = idx - offset
					break
				}
			}

			if lastBS >= 0 && curBS > lastBS {
				spans = append(spans, span{lastBS, curBS})

				var p []float64
				for _, o := range obs[max(curBS-markPEEPSamples, 0):idx] {
					p = append(p, o[1])
				}
				peeps = pushWindow(peeps, mean(p), markBufferLen)

				pip := math.Inf(-1)
				for _, o := range obs[lastBS:curBS] {
					pip = math.Max(pip, o[1])
				}
				pips = pushWindow(pips, pip, markBufferLen)

				medianPEEP, medianPIP = median(peeps), median(pips)
			}
		} else if !searching && flow < markFlowMin && pressure < level {
			searching = true
		}
	}

	if start := max(curBS, 0); start < len(obs) {
		spans = append(spans, span{start, len(obs)})
	}
	return spans
}

func pushWindow(buf []float64, v float64, n int) []float64 {
	buf = append(buf, v)
	if len(buf) > n {
		buf = buf[1:]
	}
	return buf
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	s := slices.Clone(v)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
