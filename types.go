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
	"time"
)

// TimestampFormat is the layout used for absolute breath start times in
// breath records, meta rows and the compact store.
const TimestampFormat = "2006-01-02 15-04-05.000000"

// headerTimestampFormat is the layout of a timestamp line in a raw export.
const headerTimestampFormat = "2006-01-02-15-04-05.000000"

// Device identifies the ventilator class that produced an export. The device
// fixes the sample interval; it is never inferred from the data.
type Device string

const (
	// DevicePB840 is the standard 50 Hz device class.
	DevicePB840 Device = "pb840"
	// DeviceHundredHz is the alternate 100 Hz device class.
	DeviceHundredHz Device = "100hz"
)

// DT returns the sample interval in seconds.
func (d Device) DT() (float64, error) {
	switch d {
	case DevicePB840, "":
		return 0.02, nil
	case DeviceHundredHz:
		return 0.01, nil
	default:
		return 0, &ConfigurationError{Option: "device", Reason: fmt.Sprintf("unknown device %q", string(d))}
	}
}

// Layout describes the column layout of a raw export, as detected from its
// first line.
type Layout struct {
	BreathStartCol  int  // Column holding the BS/BE sentinels
	Columns         int  // Number of columns on a data line (2 or 3)
	TimestampPerRow bool // Absolute timestamp in the first column of every row
	TimestampHeader bool // A single absolute timestamp line precedes the data
}

// Breath is one segmented breath. It is never mutated after the reader
// returns it.
type Breath struct {
	RelBN    int        // Relative breath number (1-based count of BS sentinels)
	VentBN   int        // Breath number assigned by the ventilator
	Flow     []float64  // Flow samples (L/min)
	Pressure []float64  // Pressure samples (cmH2O)
	DT       float64    // Sample interval in seconds
	BSTime   float64    // Relative breath start time in seconds
	FrameDur float64    // Breath duration in seconds, len(Flow) * DT
	AbsBS    *time.Time // Absolute breath start time, nil if unknown
}

// AbsBSString returns the absolute breath start formatted with
// TimestampFormat, or an empty string if the breath has none.
func (b *Breath) AbsBSString() string {
	if b.AbsBS == nil {
		return ""
	}
	return b.AbsBS.Format(TimestampFormat)
}

// Time returns the relative time axis of the breath, i*DT for every sample.
func (b *Breath) Time() []float64 {
	t := make([]float64, len(b.Flow))
	for i := range t {
		t[i] = float64(i) * b.DT
	}
	return t
}
