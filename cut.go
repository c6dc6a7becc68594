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
	"strings"
	"time"
)

// ErrBreathNotFound is returned by Cut when the input ends before the last
// requested breath is terminated.
var ErrBreathNotFound = errors.New("breath not found")

// Cut copies the raw lines of relative breaths start through end (inclusive)
// from src to dst, from the BS line of start up to the BE line of end.
// Timestamp lines are dropped with the rest of the prefix, so a new start
// time may be given to precede the section. Nothing is written unless the
// whole section is found.
func Cut(dst io.Writer, src io.Reader, start, end int, startAbsBS *time.Time) error {
	if start < 1 || start > end {
		return &ConfigurationError{Option: "cut", Reason: fmt.Sprintf("invalid breath range %d-%d", start, end)}
	}

	scanner := bufio.NewScanner(src)

	var (
		layout    Layout
		detected  bool
		bn        int
		recording bool
		lines     []string
	)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), "\x00", "")
		if !detected {
			layout = DetectLayout(line)
			detected = true
		}

		row := strings.Split(line, ",")
		if strings.TrimSpace(line) == "" || layout.BreathStartCol >= len(row) {
			if recording {
				lines = append(lines, line)
			}
			continue
		}
		sentinel := strings.TrimSpace(row[layout.BreathStartCol])

		if sentinel == "BS" {
			bn++
			if bn == start {
				recording = true
			}
		}
		if recording {
			lines = append(lines, line)
		}

		if bn == end && sentinel == "BE" {
			return writeLines(dst, lines, startAbsBS)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return fmt.Errorf("error cutting breaths %d-%d, found %d: %w", start, end, bn, ErrBreathNotFound)
}

func writeLines(dst io.Writer, lines []string, startAbsBS *time.Time) error {
	writer := bufio.NewWriter(dst)

	if startAbsBS != nil {
		if _, err := writer.WriteString(startAbsBS.Format(headerTimestampFormat) + "\n"); err != nil {
			return err
		}
	}
	for _, line := range lines {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return err
		}
	}

	return writer.Flush()
}
