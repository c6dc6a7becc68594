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
	"errors"
	"fmt"
)

var (
	// ErrEncoding matches any EncodingError.
	ErrEncoding = errors.New("invalid text encoding")
	// ErrConfiguration matches any ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
)

// EncodingError is returned when the input cannot be decoded as text. Open
// returns it before any breath is read; a Reader that returns it from Next
// stays failed.
type EncodingError struct {
	Line int // 1-based line at which decoding failed, 0 if unknown
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("error decoding input at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("error decoding input: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// ConfigurationError is returned when options are inconsistent or name an
// unknown policy.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Option, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
