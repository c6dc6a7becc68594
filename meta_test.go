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
	"context"
	"strings"
	"testing"

	"github.com/OpenPSG/ventmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBreaths(t *testing.T, input string) []*ventmap.Breath {
	t.Helper()

	rd, err := ventmap.Open(strings.NewReader(input), ventmap.Options{})
	require.NoError(t, err)

	breaths, err := rd.ReadAll()
	require.NoError(t, err)
	return breaths
}

func TestMetaHeader(t *testing.T) {
	assert.Len(t, ventmap.MetaHeader, 36)
	assert.Len(t, ventmap.ExperimentalMetaHeader, 53)
	assert.Equal(t, ventmap.MetaHeader, ventmap.ExperimentalMetaHeader[:36])
	assert.Equal(t, "BN", ventmap.MetaHeader[0])
	assert.Equal(t, "min_pressure", ventmap.MetaHeader[35])
}

func TestMetaBuilder(t *testing.T) {
	breaths := readBreaths(t, "2017-01-01-01-01-01.000000\n"+stepExport(2))
	require.Len(t, breaths, 2)

	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{})
	require.NoError(t, err)

	m := mb.Build(breaths[0])

	assert.Equal(t, 1, m.RelBN)
	assert.Equal(t, 101, m.VentBN)
	assert.Equal(t, 0.02, m.RelTimeAtBS)
	assert.Equal(t, 0.22, m.RelTimeAtX0)
	assert.Equal(t, 0.5, m.RelTimeAtBE)
	assert.Equal(t, 0.22, m.X01Time)
	assert.Equal(t, "2017-01-01 01-01-01.020000", m.AbsTimeAtBS)
	assert.Equal(t, "2017-01-01 01-01-01.220000", m.AbsTimeAtX0)
	assert.Equal(t, "2017-01-01 01-01-01.500000", m.AbsTimeAtBE)
	assert.Nil(t, m.Experimental)

	record := m.Record()
	require.Len(t, record, len(mb.Header()))
	assert.Equal(t, []string{"1", "101", "0.02", "0.22", "0.5", "0.66667", "0.2", "0.3", "120"}, record[:9])
	assert.Equal(t, "", record[20])
	assert.Equal(t, "10", record[28])
	assert.Equal(t, "20", record[35])

	// Building leaves the breath untouched.
	flow, pressure := stepBreath()
	assert.Equal(t, flow, breaths[0].Flow)
	assert.Equal(t, pressure, breaths[0].Pressure)
}

func TestMetaBuilderNoAbsoluteTime(t *testing.T) {
	breaths := readBreaths(t, stepExport(1))

	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{})
	require.NoError(t, err)

	m := mb.Build(breaths[0])
	assert.Equal(t, "-", m.AbsTimeAtBS)
	assert.Equal(t, "-", m.AbsTimeAtX0)
	assert.Equal(t, "-", m.AbsTimeAtBE)
}

func TestMetaBuilderExperimental(t *testing.T) {
	flow, pressure := pauseBreath()
	var sb strings.Builder
	writeBreath(&sb, 1, flow, pressure)
	breaths := readBreaths(t, sb.String())

	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{Columns: ventmap.ColumnsExperimental})
	require.NoError(t, err)
	assert.Equal(t, ventmap.ExperimentalMetaHeader, mb.Header())

	m := mb.Build(breaths[0])
	require.NotNil(t, m.Experimental)

	record := m.Record()
	require.Len(t, record, 53)
	assert.Equal(t, "18", record[49])
}

func TestMetaBuilderNaN(t *testing.T) {
	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{})
	require.NoError(t, err)

	// Inspiration only, so there is no expiratory time.
	m := mb.Build(&ventmap.Breath{RelBN: 1, Flow: repeat(40, 3), Pressure: repeat(20, 3), DT: 0.02, FrameDur: 0.04})
	assert.Equal(t, "nan", m.Record()[5])
}

func TestMetaBuilderConfiguration(t *testing.T) {
	_, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{Columns: "everything"})
	assert.ErrorIs(t, err, ventmap.ErrConfiguration)

	_, err = ventmap.NewMetaBuilder(ventmap.MetaOptions{Plateau: ventmap.PlateauOptions{Policy: "sometimes"}})
	assert.ErrorIs(t, err, ventmap.ErrConfiguration)

	// Unset plateau fields take the defaults.
	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{
		Columns: ventmap.ColumnsExperimental,
		Plateau: ventmap.PlateauOptions{Policy: ventmap.BoundAll},
	})
	require.NoError(t, err)

	flow, pressure := pauseBreath()
	m := mb.Build(&ventmap.Breath{RelBN: 1, Flow: flow, Pressure: pressure, DT: 0.02, FrameDur: 1.5})
	require.NotNil(t, m.Experimental)
	assert.True(t, m.Experimental.Plateau.Found)
	assert.InDelta(t, 18, m.Experimental.Plateau.Pressure, 1e-12)
}

func TestBuildAll(t *testing.T) {
	breaths := readBreaths(t, stepExport(8))

	mb, err := ventmap.NewMetaBuilder(ventmap.MetaOptions{Columns: ventmap.ColumnsExperimental})
	require.NoError(t, err)

	rows, err := mb.BuildAll(context.Background(), breaths, 3)
	require.NoError(t, err)
	require.Len(t, rows, len(breaths))

	for i, row := range rows {
		assert.Equal(t, i+1, row.RelBN)
		assert.Equal(t, mb.Build(breaths[i]).Record(), row.Record())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = mb.BuildAll(ctx, breaths, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
