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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config bundles reader and meta options, e.g. for a batch job.
//
//	reader:
//	  device: pb840
//	  keep_incomplete: false
//	  filter:
//	    rel_range: {start: 10, end: 20}
//	meta:
//	  columns: experimental
//	  plateau:
//	    policy: all
type Config struct {
	Reader Options     `yaml:"reader"`
	Meta   MetaOptions `yaml:"meta"`
}

// Validate reports the first configuration problem in c.
func (c Config) Validate() error {
	if err := c.Reader.Validate(); err != nil {
		return err
	}
	return c.Meta.Validate()
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfig reads and decodes a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return ParseConfig(data)
}
