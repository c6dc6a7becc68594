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
	"log/slog"
	"slices"
)

// Decoding selects how bytes that are not valid UTF-8 are handled.
type Decoding string

const (
	// DecodingStrict fails the reader with an EncodingError.
	DecodingStrict Decoding = "strict"
	// DecodingIgnore drops the offending bytes.
	DecodingIgnore Decoding = "ignore"
)

// Options configures a Reader.
type Options struct {
	Device         Device       `yaml:"device"`          // Device class, fixes the sample interval
	KeepIncomplete bool         `yaml:"keep_incomplete"` // Emit breaths that have no BE terminator
	Filter         Filter       `yaml:"filter"`          // Breath number filter, at most one kind
	Decoding       Decoding     `yaml:"decoding"`        // Invalid byte policy, strict by default
	SampleCapacity int          `yaml:"sample_capacity"` // Initial capacity of per-breath sample buffers
	Layout         *Layout      `yaml:"-"`               // Skip detection and use this layout
	Logger         *slog.Logger `yaml:"-"`
}

// Validate reports the first configuration problem in o.
func (o Options) Validate() error {
	if _, err := o.Device.DT(); err != nil {
		return err
	}
	switch o.Decoding {
	case "", DecodingStrict, DecodingIgnore:
	default:
		return &ConfigurationError{Option: "decoding", Reason: fmt.Sprintf("unknown policy %q", string(o.Decoding))}
	}
	if o.SampleCapacity < 0 {
		return &ConfigurationError{Option: "sample_capacity", Reason: "must not be negative"}
	}
	if o.Layout != nil && (o.Layout.Columns < 2 || o.Layout.BreathStartCol < 0) {
		return &ConfigurationError{Option: "layout", Reason: fmt.Sprintf("unsupported layout %+v", *o.Layout)}
	}
	return o.Filter.Validate()
}

// Range is an inclusive breath number range.
type Range struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Filter restricts the breaths a Reader returns. At most one field may be
// set. Once a breath number passes the filter's upper bound the reader stops
// consuming input.
type Filter struct {
	RelRange  *Range `yaml:"rel_range"`  // Inclusive relative breath number range
	VentRange *Range `yaml:"vent_range"` // Inclusive vent breath number range
	RelBNs    []int  `yaml:"rel_bns"`    // Specific relative breath numbers
	VentBNs   []int  `yaml:"vent_bns"`   // Specific vent breath numbers
}

// Validate checks that at most one kind of filter is set and that ranges are
// well formed.
func (f Filter) Validate() error {
	set := 0
	if f.RelRange != nil {
		set++
	}
	if f.VentRange != nil {
		set++
	}
	if len(f.RelBNs) > 0 {
		set++
	}
	if len(f.VentBNs) > 0 {
		set++
	}
	if set > 1 {
		return &ConfigurationError{Option: "filter", Reason: "only one of rel_range, vent_range, rel_bns and vent_bns may be set"}
	}

	for name, r := range map[string]*Range{"rel_range": f.RelRange, "vent_range": f.VentRange} {
		if r != nil && r.Start > r.End {
			return &ConfigurationError{Option: "filter." + name, Reason: fmt.Sprintf("start %d is after end %d", r.Start, r.End)}
		}
	}

	return nil
}

type filterKind int

const (
	filterNone filterKind = iota
	filterRel
	filterVent
)

// breathFilter is the compiled form of a Filter.
type breathFilter struct {
	kind filterKind
	lo   int
	hi   int
	set  []int // sorted, nil for ranges
}

func (f Filter) compile() breathFilter {
	switch {
	case f.RelRange != nil:
		return breathFilter{kind: filterRel, lo: f.RelRange.Start, hi: f.RelRange.End}
	case f.VentRange != nil:
		return breathFilter{kind: filterVent, lo: f.VentRange.Start, hi: f.VentRange.End}
	case len(f.RelBNs) > 0:
		return newSetFilter(filterRel, f.RelBNs)
	case len(f.VentBNs) > 0:
		return newSetFilter(filterVent, f.VentBNs)
	default:
		return breathFilter{}
	}
}

func newSetFilter(kind filterKind, bns []int) breathFilter {
	set := slices.Clone(bns)
	slices.Sort(set)
	return breathFilter{kind: kind, lo: set[0], hi: set[len(set)-1], set: set}
}

func (bf breathFilter) pick(relBN, ventBN int) int {
	if bf.kind == filterVent {
		return ventBN
	}
	return relBN
}

// exceeded reports whether no later breath can pass the filter.
func (bf breathFilter) exceeded(relBN, ventBN int) bool {
	return bf.kind != filterNone && bf.pick(relBN, ventBN) > bf.hi
}

func (bf breathFilter) accepts(relBN, ventBN int) bool {
	if bf.kind == filterNone {
		return true
	}
	bn := bf.pick(relBN, ventBN)
	if bf.set != nil {
		_, found := slices.BinarySearch(bf.set, bn)
		return found
	}
	return bn >= bf.lo && bn <= bf.hi
}

// done reports whether the breath just finished was the last one a relative
// filter can accept. Vent breath numbers are not guaranteed to be monotonic,
// so vent filters only stop once a larger number is observed.
func (bf breathFilter) done(relBN int) bool {
	return bf.kind == filterRel && relBN >= bf.hi
}
