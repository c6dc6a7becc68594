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
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Store is a decoded compact store. Breaths are sliced out of the shared
// sample array on demand.
type Store struct {
	samples [][2]float64
	index   []storeIndexRow
}

// OpenStore decodes a compact store written by a StoreWriter.
func OpenStore(r io.Reader) (*Store, error) {
	var file storeFile
	if err := msgpack.NewDecoder(bufio.NewReader(r)).Decode(&file); err != nil {
		return nil, fmt.Errorf("error decoding store: %w", err)
	}

	if file.Version != storeVersion {
		return nil, fmt.Errorf("unsupported store version: %d", file.Version)
	}

	for i, row := range file.Index {
		if row.Start < 0 || row.Start > row.End || row.End > len(file.Samples) {
			return nil, fmt.Errorf("index row %d out of range: [%d, %d) of %d samples", i, row.Start, row.End, len(file.Samples))
		}
		if row.AbsBS != "" {
			if _, err := time.Parse(TimestampFormat, row.AbsBS); err != nil {
				return nil, fmt.Errorf("error parsing start time of index row %d: %w", i, err)
			}
		}
	}

	return &Store{samples: file.Samples, index: file.Index}, nil
}

// Len returns the number of breaths in the store.
func (s *Store) Len() int {
	return len(s.index)
}

// Breath returns the i'th breath of the store.
func (s *Store) Breath(i int) (*Breath, error) {
	if i < 0 || i >= len(s.index) {
		return nil, fmt.Errorf("breath index out of range: %d", i)
	}
	row := s.index[i]

	b := &Breath{
		RelBN:    row.RelBN,
		VentBN:   row.VentBN,
		Flow:     make([]float64, 0, row.End-row.Start),
		Pressure: make([]float64, 0, row.End-row.Start),
		DT:       row.DT,
		BSTime:   row.BSTime,
		FrameDur: row.FrameDur,
	}
	for _, sample := range s.samples[row.Start:row.End] {
		b.Flow = append(b.Flow, sample[0])
		b.Pressure = append(b.Pressure, sample[1])
	}

	// Validated by OpenStore.
	if row.AbsBS != "" {
		t, _ := time.Parse(TimestampFormat, row.AbsBS)
		b.AbsBS = &t
	}

	return b, nil
}

// Breaths returns every breath of the store in order.
func (s *Store) Breaths() []*Breath {
	breaths := make([]*Breath, 0, len(s.index))
	for i := range s.index {
		b, _ := s.Breath(i)
		breaths = append(breaths, b)
	}
	return breaths
}
