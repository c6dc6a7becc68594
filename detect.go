// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ventmap

import "strings"

// DetectLayout inspects the first line of an export and returns its layout.
//
// The check is positional only, and the order matters:
//
//	2015-06-09 02:35:07.685091508, BS, S:114,   timestamp on every row
//	2017-01-01-01-01-01.000000                  timestamp header line
//	BS, S:52335,                                no timestamp
//
// A data line can match a narrower pattern by accident; callers that know
// the layout should set it explicitly instead.
func DetectLayout(first string) Layout {
	first = strings.Trim(first, ",\r\n")

	switch {
	case len(strings.Split(first, ",")) == 3 || len(strings.Split(first, "-")) == 3:
		return Layout{BreathStartCol: 1, Columns: 3, TimestampPerRow: true}
	case len(strings.Split(first, "-")) == 6:
		return Layout{BreathStartCol: 0, Columns: 2, TimestampHeader: true}
	default:
		return Layout{BreathStartCol: 0, Columns: 2}
	}
}
