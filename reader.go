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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var (
	ventBNPattern    = regexp.MustCompile(`S:(\d+)`)
	timestampPattern = regexp.MustCompile(`^2\d{3}-\d{2}-`)
)

// Timestamp layouts accepted on timestamp lines and in the first column of
// timestamped rows.
var timestampLayouts = []string{
	"2006-01-02-15-04-05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15-04-05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02-15-04-05",
}

// LineScanner is a source of text lines. *bufio.Scanner implements it.
type LineScanner interface {
	Scan() bool
	Text() string
	Err() error
}

// Reader segments a ventilator export into breaths. It makes a single forward
// pass over its input and is not safe for concurrent use; independent Readers
// share no state.
type Reader struct {
	lines          LineScanner
	layout         Layout
	dt             float64
	keepIncomplete bool
	filter         breathFilter
	capacity       int
	logger         *slog.Logger

	pending    string // first line, consumed by layout detection
	hasPending bool
	line       int // lines consumed so far

	relBN          int
	ventBN         int
	relBSTime      float64
	lastBreathTime float64
	absBS          *time.Time // absolute start of the current breath
	absCursor      *time.Time // absolute time of the latest sample, timestamp header layouts only
	collecting     bool       // between an accepted BS and its terminator
	valid          bool       // samples of the current breath are kept
	flow           []float64
	pressure       []float64

	stopped bool
	err     error
}

// Open prepares a Reader over a raw ventilator export. Input is decoded as
// UTF-8 with NUL bytes removed; invalid bytes either fail Open with an
// EncodingError or are dropped, depending on Options.Decoding. Strict decoding
// checks the whole input before any line is parsed, so r is rewound to where
// it started.
func Open(r io.ReadSeeker, opts Options) (*Reader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dropNUL := runes.Remove(runes.Predicate(func(c rune) bool { return c == 0 }))

	var t transform.Transformer
	if opts.Decoding == DecodingIgnore {
		t = transform.Chain(runes.ReplaceIllFormed(), runes.Remove(runes.Predicate(func(c rune) bool {
			return c == 0 || c == utf8.RuneError
		})))
	} else {
		start, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("error seeking input: %w", err)
		}

		if err := validateUTF8(r); err != nil {
			return nil, err
		}

		if _, err := r.Seek(start, io.SeekStart); err != nil {
			return nil, fmt.Errorf("error seeking input: %w", err)
		}

		t = transform.Chain(encoding.UTF8Validator, dropNUL)
	}

	return NewReader(bufio.NewScanner(transform.NewReader(r, t)), opts)
}

// validateUTF8 reads r to the end and reports the first line that is not
// valid UTF-8.
func validateUTF8(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++
		if _, _, err := transform.Bytes(encoding.UTF8Validator, scanner.Bytes()); err != nil {
			return &EncodingError{Line: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading line %d: %w", line+1, err)
	}

	return nil
}

// NewReader prepares a Reader over already decoded lines. The first line is
// read immediately to detect the layout, unless Options.Layout is set.
func NewReader(lines LineScanner, opts Options) (*Reader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	dt, _ := opts.Device.DT()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rd := &Reader{
		lines:          lines,
		dt:             dt,
		keepIncomplete: opts.KeepIncomplete,
		filter:         opts.Filter.compile(),
		capacity:       opts.SampleCapacity,
		logger:         logger,
		lastBreathTime: dt,
	}

	if lines.Scan() {
		rd.pending = lines.Text()
		rd.hasPending = true
	} else if err := lines.Err(); err != nil {
		return nil, rd.readError(err, 1)
	}

	if opts.Layout != nil {
		rd.layout = *opts.Layout
	} else {
		rd.layout = DetectLayout(rd.pending)
	}

	return rd, nil
}

// Layout returns the layout the reader is using.
func (rd *Reader) Layout() Layout {
	return rd.layout
}

// Next returns the next breath. It returns io.EOF once the input is exhausted
// or an active filter can match no further breaths; in the latter case no
// more input is read.
func (rd *Reader) Next() (*Breath, error) {
	for {
		if rd.err != nil {
			return nil, rd.err
		}
		if rd.stopped {
			return nil, io.EOF
		}

		line, ok := rd.nextLine()
		if !ok {
			if err := rd.lines.Err(); err != nil {
				rd.err = rd.readError(err, rd.line+1)
				return nil, rd.err
			}
			rd.stopped = true

			if rd.keepIncomplete && len(rd.flow) > 0 {
				return rd.finalize(), nil
			}
			return nil, io.EOF
		}

		if b := rd.processLine(line); b != nil {
			return b, nil
		}
	}
}

// ReadAll reads every remaining breath. On error no breaths are returned.
func (rd *Reader) ReadAll() ([]*Breath, error) {
	var breaths []*Breath
	for {
		b, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return breaths, nil
		}
		if err != nil {
			return nil, err
		}
		breaths = append(breaths, b)
	}
}

func (rd *Reader) nextLine() (string, bool) {
	if rd.hasPending {
		rd.hasPending = false
		rd.line++
		return rd.pending, true
	}
	if !rd.lines.Scan() {
		return "", false
	}
	rd.line++
	return rd.lines.Text(), true
}

func (rd *Reader) readError(err error, line int) error {
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return &EncodingError{Line: line, Err: err}
	}
	return fmt.Errorf("error reading line %d: %w", line, err)
}

// processLine advances the state machine by one line and returns a breath if
// the line finalized one.
func (rd *Reader) processLine(line string) *Breath {
	row := strings.Split(strings.TrimSpace(line), ",")
	if rd.layout.BreathStartCol >= len(row) {
		rd.logger.Debug("skipping line without sentinel column", "line", rd.line)
		return nil
	}

	if !rd.layout.TimestampPerRow && timestampPattern.MatchString(row[0]) {
		rd.setTimestamp(row[0])
		return nil
	}

	switch strings.TrimSpace(row[rd.layout.BreathStartCol]) {
	case "BS":
		return rd.breathStart(row)
	case "BE":
		return rd.breathEnd()
	default:
		rd.sample(row)
		return nil
	}
}

func (rd *Reader) breathStart(row []string) *Breath {
	var b *Breath
	if rd.keepIncomplete && rd.collecting && rd.valid && len(rd.flow) > 0 {
		b = rd.finalize()
	}

	rd.relBSTime += rd.lastBreathTime
	if rd.layout.TimestampPerRow {
		rd.absBS = rd.parseTimestamp(row[0])
	} else if rd.absCursor != nil {
		t := rd.absCursor.Add(rd.dtDuration())
		rd.absBS = &t
	}

	rd.relBN++
	rd.collecting = true
	rd.valid = true
	rd.flow = make([]float64, 0, rd.capacity)
	rd.pressure = make([]float64, 0, rd.capacity)

	ventBN, ok := rd.parseVentBN(row)
	if !ok {
		rd.logger.Debug("dropping breath without vent breath number", "rel_bn", rd.relBN, "line", rd.line)
		rd.valid = false
		return b
	}
	rd.ventBN = ventBN

	if rd.filter.exceeded(rd.relBN, rd.ventBN) {
		rd.logger.Debug("breath filter exhausted", "rel_bn", rd.relBN, "vent_bn", rd.ventBN, "line", rd.line)
		rd.stopped = true
		rd.valid = false
	} else if !rd.filter.accepts(rd.relBN, rd.ventBN) {
		rd.valid = false
	}

	return b
}

func (rd *Reader) breathEnd() *Breath {
	var b *Breath
	rd.collecting = false
	if len(rd.flow) > 0 {
		b = rd.finalize()
	}
	if rd.filter.done(rd.relBN) {
		rd.logger.Debug("breath filter exhausted", "rel_bn", rd.relBN, "line", rd.line)
		rd.stopped = true
	}
	return b
}

func (rd *Reader) sample(row []string) {
	if rd.absCursor != nil {
		t := rd.absCursor.Add(rd.dtDuration())
		rd.absCursor = &t
	}
	if !rd.collecting || !rd.valid {
		return
	}

	cols := rd.layout.Columns
	if cols < 2 || len(row) < cols {
		rd.logger.Debug("dropping short sample row", "rel_bn", rd.relBN, "line", rd.line)
		return
	}

	flow, err := strconv.ParseFloat(strings.TrimSpace(row[cols-2]), 64)
	if err != nil {
		rd.logger.Debug("dropping unparsable flow sample", "rel_bn", rd.relBN, "line", rd.line, "error", err)
		return
	}
	pressure, err := strconv.ParseFloat(strings.TrimSpace(row[cols-1]), 64)
	if err != nil {
		rd.logger.Debug("dropping unparsable pressure sample", "rel_bn", rd.relBN, "line", rd.line, "error", err)
		return
	}

	rd.flow = append(rd.flow, roundTo(flow, 2))
	rd.pressure = append(rd.pressure, roundTo(pressure, 2))
}

// finalize emits the current sample buffer as a breath and resets it.
func (rd *Reader) finalize() *Breath {
	rd.lastBreathTime = rd.dt * float64(len(rd.flow))

	b := &Breath{
		RelBN:    rd.relBN,
		VentBN:   rd.ventBN,
		Flow:     rd.flow,
		Pressure: rd.pressure,
		DT:       rd.dt,
		BSTime:   roundTo(rd.relBSTime, 2),
		FrameDur: roundTo(rd.lastBreathTime, 2),
	}
	if rd.absBS != nil {
		t := *rd.absBS
		b.AbsBS = &t
	}

	rd.flow, rd.pressure = nil, nil
	return b
}

func (rd *Reader) parseVentBN(row []string) (int, bool) {
	col := rd.layout.BreathStartCol + 1
	if col >= len(row) {
		return 0, false
	}
	m := ventBNPattern.FindStringSubmatch(row[col])
	if m == nil {
		return 0, false
	}
	bn, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return bn, true
}

// setTimestamp rebases absolute time on a timestamp line.
func (rd *Reader) setTimestamp(s string) {
	t := rd.parseTimestamp(s)
	if t == nil {
		return
	}
	cursor := *t
	rd.absBS = t
	rd.absCursor = &cursor
}

func (rd *Reader) parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.Truncate(time.Microsecond)
			return &t
		}
	}
	rd.logger.Debug("ignoring unparsable timestamp", "value", s, "line", rd.line)
	return nil
}

func (rd *Reader) dtDuration() time.Duration {
	return time.Duration(rd.dt * float64(time.Second))
}
