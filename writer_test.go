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
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenPSG/ventmap"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestMetaWriter(t *testing.T) {
	breaths := readBreaths(t, stepExport(3))

	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw, err := ventmap.CreateMetaWriter(&buf, mb)
	require.NoError(t, err)

	for _, b := range breaths {
		require.NoError(t, mw.WriteBreath(b))
	}
	require.NoError(t, mw.Close())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, ventmap.MetaHeader, records[0])
	for i, record := range records[1:] {
		assert.Equal(t, mb.Build(breaths[i]).Record(), record)
	}
}

func TestStore(t *testing.T) {
	breaths := readBreaths(t, "2017-01-01-01-01-01.000000\n"+stepExport(3))
	flow, pressure := pauseBreath()
	breaths = append(breaths, &ventmap.Breath{RelBN: 4, VentBN: 104, Flow: flow, Pressure: pressure, DT: 0.02, BSTime: 1.52, FrameDur: 1.5})

	path := filepath.Join(t.TempDir(), "breaths.msgpack")

	f, err := os.Create(path)
	require.NoError(t, err)

	sw := ventmap.NewStoreWriter(f)
	for _, b := range breaths {
		require.NoError(t, sw.WriteBreath(b))
	}
	require.NoError(t, sw.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	store, err := ventmap.OpenStore(f)
	require.NoError(t, err)
	require.Equal(t, len(breaths), store.Len())

	if diff := cmp.Diff(breaths, store.Breaths()); diff != "" {
		t.Errorf("store mismatch (-want +got):\n%s", diff)
	}

	b, err := store.Breath(3)
	require.NoError(t, err)
	assert.Nil(t, b.AbsBS)
	assert.Len(t, b.Flow, 75)

	_, err = store.Breath(4)
	assert.Error(t, err)
}

func TestStoreInvalid(t *testing.T) {
	t.Run("Garbage", func(t *testing.T) {
		_, err := ventmap.OpenStore(strings.NewReader("not a store"))
		assert.Error(t, err)
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		data, err := msgpack.Marshal(map[string]any{
			"version": 1,
			"samples": [][2]float64{{40, 20}},
			"index":   [][]any{{1, 101, "", 0.02, 0.1, 0.02, 0, 5}},
		})
		require.NoError(t, err)

		_, err = ventmap.OpenStore(bytes.NewReader(data))
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("Version", func(t *testing.T) {
		data, err := msgpack.Marshal(map[string]any{"version": 99})
		require.NoError(t, err)

		_, err = ventmap.OpenStore(bytes.NewReader(data))
		assert.ErrorContains(t, err, "unsupported store version")
	})

	t.Run("MismatchedBreath", func(t *testing.T) {
		sw := ventmap.NewStoreWriter(&bytes.Buffer{})
		assert.Error(t, sw.WriteBreath(&ventmap.Breath{Flow: []float64{1, 2}, Pressure: []float64{1}}))
	})
}

func TestTextWriter(t *testing.T) {
	t.Run("NoTimestamps", func(t *testing.T) {
		input := stepExport(3)

		var buf bytes.Buffer
		tw := ventmap.NewTextWriter(&buf)
		for _, b := range readBreaths(t, input) {
			require.NoError(t, tw.WriteBreath(b))
		}
		require.NoError(t, tw.Close())

		assert.Equal(t, input, buf.String())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		breaths := readBreaths(t, "2017-01-01-01-01-01.000000\n"+stepExport(3))

		var buf bytes.Buffer
		tw := ventmap.NewTextWriter(&buf)
		for _, b := range breaths {
			require.NoError(t, tw.WriteBreath(b))
		}
		require.NoError(t, tw.Close())

		assert.True(t, strings.HasPrefix(buf.String(), "2017-01-01-01-01-01.000000\nBS, S:101,\n40, 20\n"))

		if diff := cmp.Diff(breaths, readBreaths(t, buf.String())); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ThreeColumns", func(t *testing.T) {
		input := strings.Join([]string{
			"2015-06-09 02:35:07.685091508, BS, S:114,",
			"2015-06-09 02:35:07.705091508, 40.123, 20",
			"2015-06-09 02:35:07.725091508, -20, 5.5",
			"2015-06-09 02:35:07.745091508, BE",
		}, "\n")

		var buf bytes.Buffer
		tw := ventmap.NewTextWriter(&buf)
		for _, b := range readBreaths(t, input) {
			require.NoError(t, tw.WriteBreath(b))
		}
		require.NoError(t, tw.Close())

		assert.Equal(t, "2015-06-09-02-35-07.665091\nBS, S:114,\n40.12, 20\n-20, 5.5\nBE\n", buf.String())
	})
}
