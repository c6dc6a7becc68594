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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// MetaWriter writes meta rows as CSV.
type MetaWriter struct {
	w    *csv.Writer
	mb   *MetaBuilder
	rows int // Number of rows written so far.
}

// CreateMetaWriter creates a new meta writer and writes the header row.
func CreateMetaWriter(w io.Writer, mb *MetaBuilder) (*MetaWriter, error) {
	mw := &MetaWriter{w: csv.NewWriter(w), mb: mb}

	if err := mw.w.Write(mb.Header()); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return mw, nil
}

// WriteBreath builds and writes the meta row of a breath.
func (mw *MetaWriter) WriteBreath(b *Breath) error {
	return mw.WriteMeta(mw.mb.Build(b))
}

// WriteMeta writes a meta row built earlier, e.g. by BuildAll.
func (mw *MetaWriter) WriteMeta(m Meta) error {
	if err := mw.w.Write(m.Record()); err != nil {
		return fmt.Errorf("error writing row %d: %w", mw.rows+1, err)
	}
	mw.rows++
	return nil
}

// Close flushes any buffered rows.
func (mw *MetaWriter) Close() error {
	mw.w.Flush()
	if err := mw.w.Error(); err != nil {
		return fmt.Errorf("error flushing rows: %w", err)
	}
	return nil
}

// storeVersion is bumped whenever the encoded layout of a store changes.
const storeVersion = 1

type storeFile struct {
	Version int             `msgpack:"version"`
	Samples [][2]float64    `msgpack:"samples"` // [flow, pressure] of every breath, back to back
	Index   []storeIndexRow `msgpack:"index"`
}

// storeIndexRow locates one breath within the sample array.
type storeIndexRow struct {
	_msgpack struct{} `msgpack:",as_array"`

	RelBN    int
	VentBN   int
	AbsBS    string // TimestampFormat, empty if unknown
	BSTime   float64
	FrameDur float64
	DT       float64
	Start    int
	End      int
}

// StoreWriter writes breaths to a compact store: one flat sample array and
// one index row per breath.
type StoreWriter struct {
	w    io.Writer
	file storeFile
}

// NewStoreWriter creates a store writer. Nothing is written until Close.
func NewStoreWriter(w io.Writer) *StoreWriter {
	return &StoreWriter{w: w, file: storeFile{Version: storeVersion}}
}

// WriteBreath appends a breath to the store.
func (sw *StoreWriter) WriteBreath(b *Breath) error {
	if len(b.Flow) != len(b.Pressure) {
		return fmt.Errorf("breath %d has %d flow and %d pressure samples", b.RelBN, len(b.Flow), len(b.Pressure))
	}

	start := len(sw.file.Samples)
	for i, f := range b.Flow {
		sw.file.Samples = append(sw.file.Samples, [2]float64{f, b.Pressure[i]})
	}

	sw.file.Index = append(sw.file.Index, storeIndexRow{
		RelBN:    b.RelBN,
		VentBN:   b.VentBN,
		AbsBS:    b.AbsBSString(),
		BSTime:   b.BSTime,
		FrameDur: b.FrameDur,
		DT:       b.DT,
		Start:    start,
		End:      len(sw.file.Samples),
	})

	return nil
}

// Close finalizes the store by encoding the sample and index arrays.
func (sw *StoreWriter) Close() error {
	writer := bufio.NewWriter(sw.w)

	if err := msgpack.NewEncoder(writer).Encode(&sw.file); err != nil {
		return fmt.Errorf("error encoding store: %w", err)
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

// TextWriter writes breaths back out as a two column export. A breath with an
// absolute start time is preceded by a timestamp line one sample interval
// before its start, so reading the export back yields the same start time.
type TextWriter struct {
	w *bufio.Writer
}

// NewTextWriter creates a text writer.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

// WriteBreath writes a breath delimited by BS and BE lines.
func (tw *TextWriter) WriteBreath(b *Breath) error {
	if b.AbsBS != nil {
		ts := b.AbsBS.Add(-seconds(b.DT))
		if _, err := tw.w.WriteString(ts.Format(headerTimestampFormat) + "\n"); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(tw.w, "BS, S:%d,\n", b.VentBN); err != nil {
		return err
	}

	n := min(len(b.Flow), len(b.Pressure))
	for i := 0; i < n; i++ {
		line := strconv.FormatFloat(roundTo(b.Flow[i], 2), 'f', -1, 64) + ", " +
			strconv.FormatFloat(roundTo(b.Pressure[i], 2), 'f', -1, 64) + "\n"
		if _, err := tw.w.WriteString(line); err != nil {
			return err
		}
	}

	_, err := tw.w.WriteString("BE\n")
	return err
}

// Close flushes any buffered output.
func (tw *TextWriter) Close() error {
	return tw.w.Flush()
}
