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
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// ColumnSet selects the meta columns written per breath.
type ColumnSet string

const (
	// ColumnsProduction is the validated column set.
	ColumnsProduction ColumnSet = "production"
	// ColumnsExperimental appends supplemental estimators to the production
	// columns.
	ColumnsExperimental ColumnSet = "experimental"
)

// MetaHeader is the production column order.
var MetaHeader = []string{
	"BN", "ventBN", "BS", "IEnd", "BE", "I:E ratio", "iTime", "eTime", "inst_RR",
	"tvi", "tve", "tve:tvi ratio", "maxF", "minF", "maxP", "PIP", "Maw", "PEEP",
	"ipAUC", "epAUC", " ", "BS.1", "x01", "tvi1", "tve1", "x02", "tvi2", "tve2",
	"x0_index", "abs_time_at_BS", "abs_time_at_x0", "abs_time_at_BE",
	"rel_time_at_BS", "rel_time_at_x0", "rel_time_at_BE", "min_pressure",
}

// ExperimentalMetaHeader is the experimental column order.
var ExperimentalMetaHeader = append(slices.Clone(MetaHeader),
	"minF_to_zero", "pef_+0.16_to_zero", "mean_flow_from_pef", "dyn_compliance",
	"vol_at_.5_sec", "vol_at_.76_sec", "vol_at_1_sec",
	"pressure_itime_4", "pressure_itime_5", "pressure_itime_6",
	"pressure_itime_by_pip5", "pressure_itime_by_pip6", "pressure_itime_from_front",
	"plat", "exp_plat", "resistance", "pressure_itime_dyn_thresh",
)

// MetaOptions configures a MetaBuilder.
type MetaOptions struct {
	Columns   ColumnSet      `yaml:"columns"`    // Production unless set
	SignedTVe bool           `yaml:"signed_tve"` // Keep the sign of expiratory volumes
	Plateau   PlateauOptions `yaml:"plateau"`    // Zero fields take DefaultPlateauOptions values
	Logger    *slog.Logger   `yaml:"-"`
}

// Validate reports unknown column sets and invalid plateau settings.
func (o MetaOptions) Validate() error {
	switch o.Columns {
	case "", ColumnsProduction, ColumnsExperimental:
	default:
		return &ConfigurationError{Option: "columns", Reason: fmt.Sprintf("unknown column set %q", string(o.Columns))}
	}
	return o.Plateau.withDefaults().Validate()
}

// MetaBuilder projects breaths into fixed-order meta rows.
type MetaBuilder struct {
	experimental bool
	signedTVe    bool
	plateau      PlateauOptions
	logger       *slog.Logger
}

// NewMetaBuilder returns a builder for the configured column set.
func NewMetaBuilder(opts MetaOptions) (*MetaBuilder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	mb := &MetaBuilder{
		experimental: opts.Columns == ColumnsExperimental,
		signedTVe:    opts.SignedTVe,
		plateau:      opts.Plateau.withDefaults(),
		logger:       opts.Logger,
	}
	if mb.logger == nil {
		mb.logger = slog.Default()
	}
	return mb, nil
}

// Header returns the column names in row order.
func (mb *MetaBuilder) Header() []string {
	if mb.experimental {
		return slices.Clone(ExperimentalMetaHeader)
	}
	return slices.Clone(MetaHeader)
}

// Meta is the meta row of one breath.
type Meta struct {
	RelBN  int
	VentBN int

	RelTimeAtBS float64
	RelTimeAtX0 float64
	RelTimeAtBE float64
	BSTime      float64
	X01Time     float64
	X02Time     float64

	AbsTimeAtBS string // "-" when the breath has no absolute time
	AbsTimeAtX0 string
	AbsTimeAtBE string

	Metrics
}

// Build derives the meta row of a breath. The breath is not modified.
func (mb *MetaBuilder) Build(b *Breath) Meta {
	var plateau *PlateauOptions
	if mb.experimental {
		plateau = &mb.plateau
	}

	// Plateau options were validated by NewMetaBuilder.
	metrics := computeMetrics(b, mb.signedTVe, plateau)

	m := Meta{
		RelBN:       b.RelBN,
		VentBN:      b.VentBN,
		RelTimeAtBS: roundTo(b.BSTime, 2),
		RelTimeAtX0: roundTo(b.BSTime+metrics.ITime, 2),
		RelTimeAtBE: roundTo(b.BSTime+b.FrameDur-b.DT, 2),
		BSTime:      b.BSTime,
		X01Time:     roundTo(b.BSTime+float64(metrics.X0.Crossing)*b.DT, 2),
		X02Time:     roundTo(b.BSTime+float64(metrics.X0.LargestInspiration)*b.DT, 2),
		AbsTimeAtBS: "-",
		AbsTimeAtX0: "-",
		AbsTimeAtBE: "-",
		Metrics:     metrics,
	}

	if b.AbsBS != nil {
		m.AbsTimeAtBS = b.AbsBS.Format(TimestampFormat)
		m.AbsTimeAtX0 = b.AbsBS.Add(seconds(roundTo(float64(metrics.X0.Index)*b.DT, 2))).Format(TimestampFormat)
		m.AbsTimeAtBE = b.AbsBS.Add(seconds(b.FrameDur - b.DT)).Format(TimestampFormat)
	}

	return m
}

// BuildAll builds the meta rows of many breaths concurrently, at most workers
// at a time (unbounded if workers <= 0). Rows keep the order of breaths.
func (mb *MetaBuilder) BuildAll(ctx context.Context, breaths []*Breath, workers int) ([]Meta, error) {
	rows := make([]Meta, len(breaths))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, b := range breaths {
		i, b := i, b
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = mb.Build(b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mb.logger.Debug("built breath metadata", "breaths", len(breaths), "workers", workers)
	return rows, nil
}

// Values returns the row in header order. The experimental columns are only
// included if the metrics carry them.
func (m Meta) Values() []any {
	values := []any{
		m.RelBN, m.VentBN, m.RelTimeAtBS, m.RelTimeAtX0, m.RelTimeAtBE,
		m.IERatio, m.ITime, m.ETime, m.RR, m.TVi, m.TVe, m.TVRatio,
		m.MaxF, m.MinF, m.MaxP, m.PIP, m.Maw, m.PEEP, m.IPAUC, m.EPAUC, "",
		m.BSTime, m.X01Time, m.TVi1, m.TVe1, m.X02Time, m.TVi2, m.TVe2,
		m.X0.Index, m.AbsTimeAtBS, m.AbsTimeAtX0, m.AbsTimeAtBE,
		m.RelTimeAtBS, m.RelTimeAtX0, m.RelTimeAtBE, m.MinPressure,
	}

	if e := m.Experimental; e != nil {
		values = append(values,
			e.SlopeMinFToZero, e.SlopeMinFToZeroOffset, e.MeanFlowFromPEF, e.DynCompliance,
			e.VolAt05, e.VolAt076, e.VolAt1,
			e.PressureITime4, e.PressureITime5, e.PressureITime6,
			e.PressureITimeByPIP5, e.PressureITimeByPIP6, e.PressureITimeFromFront,
			e.Plateau.Pressure, e.ExpPlateau, e.Resistance, e.PressureITimeDynamic,
		)
	}

	return values
}

// Record returns the row as CSV cells.
func (m Meta) Record() []string {
	values := m.Values()
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = formatValue(v)
	}
	return record
}

func formatValue(v any) string {
	switch v := v.(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		switch {
		case math.IsNaN(v):
			return "nan"
		case math.IsInf(v, 1):
			return "inf"
		case math.IsInf(v, -1):
			return "-inf"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// seconds converts fractional seconds to a duration with microsecond
// resolution.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}
