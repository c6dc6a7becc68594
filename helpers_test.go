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
	"bufio"
	"fmt"
	"strings"
)

func repeat(v float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func concat(parts ...[]float64) []float64 {
	var s []float64
	for _, p := range parts {
		s = append(s, p...)
	}
	return s
}

// stepBreath is 10 samples of inspiration at 40 L/min followed by 15 samples
// of expiration at -20 L/min.
func stepBreath() (flow, pressure []float64) {
	return concat(repeat(40, 10), repeat(-20, 15)), concat(repeat(20, 10), repeat(5, 15))
}

func writeBreath(sb *strings.Builder, ventBN int, flow, pressure []float64) {
	fmt.Fprintf(sb, "BS, S:%d,\n", ventBN)
	for i := range flow {
		fmt.Fprintf(sb, "%g, %g\n", flow[i], pressure[i])
	}
	sb.WriteString("BE\n")
}

// stepExport returns a two column export of n step breaths numbered from
// 101 by the ventilator.
func stepExport(n int) string {
	flow, pressure := stepBreath()

	var sb strings.Builder
	for i := 0; i < n; i++ {
		writeBreath(&sb, 101+i, flow, pressure)
	}
	return sb.String()
}

// countingScanner counts the lines handed out.
type countingScanner struct {
	*bufio.Scanner
	scanned int
}

func (c *countingScanner) Scan() bool {
	ok := c.Scanner.Scan()
	if ok {
		c.scanned++
	}
	return ok
}
