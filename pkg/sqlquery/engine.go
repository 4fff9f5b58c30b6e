// SPDX-License-Identifier: GPL-3.0-or-later

package sqlquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/metric"
	"github.com/collectd/collectd-sub006/pkg/strmutil"
)

var (
	ErrNotPrepared = errors.New("query is not prepared")
	ErrAllFailed   = errors.New("all results failed")
	ErrNoQuery     = errors.New("no query was executed")
)

type (
	// DataSets resolves the Type of a result.
	DataSets interface {
		Get(typ string) (*metric.DataSet, error)
	}
	// Emitter receives the value lists built from the rows.
	Emitter interface {
		DispatchValues(ctx context.Context, vl *metric.ValueList) error
	}

	Engine struct {
		*logger.Logger

		Types   DataSets
		Emitter Emitter
	}

	// PreparationArea holds the column bindings of one query against one connection.
	// It is owned by a single read callback.
	PreparationArea struct {
		prepared  bool
		columnNum int
		host      string
		plugin    string
		dbName    string
		interval  cdtime.Time
		results   []resultArea
	}

	resultArea struct {
		ds           *metric.DataSet
		instancesPos []int
		valuesPos    []int
		metaPos      []int
	}
)

func NewEngine(types DataSets, emitter Emitter) *Engine {
	return &Engine{
		Logger:  logger.New().With(slog.String("component", "db query")),
		Types:   types,
		Emitter: emitter,
	}
}

func NewPreparationArea(q *Query) *PreparationArea {
	return &PreparationArea{results: make([]resultArea, len(q.Results))}
}

// Prepared reports whether Prepare succeeded and Finish has not been called since.
func (a *PreparationArea) Prepared() bool { return a.prepared }

// Prepare binds the result columns of q by name (case-insensitive). Any previous
// preparation of area is finished first.
func (e *Engine) Prepare(q *Query, area *PreparationArea, host, plugin, dbName string, columns []string, interval time.Duration) error {
	if q == nil || area == nil {
		return fmt.Errorf("%w: nil query or preparation area", metric.ErrInvalid)
	}
	e.Finish(q, area)

	if len(area.results) != len(q.Results) {
		return fmt.Errorf("query '%s': invalid number of result preparation areas", q.Name)
	}

	for i, r := range q.Results {
		ra, err := e.prepareResult(r, columns)
		if err != nil {
			e.Finish(q, area)
			return fmt.Errorf("query '%s': %w", q.Name, err)
		}
		area.results[i] = ra
	}

	area.prepared = true
	area.columnNum = len(columns)
	area.host = host
	area.plugin = plugin
	area.dbName = dbName
	area.interval = cdtime.FromDuration(interval)
	return nil
}

func (e *Engine) prepareResult(r *Result, columns []string) (resultArea, error) {
	ds, err := e.Types.Get(r.Type)
	if err != nil {
		return resultArea{}, fmt.Errorf("type '%s' is not known by the daemon: %w", r.Type, err)
	}
	if len(ds.Sources) != len(r.ValuesFrom) {
		return resultArea{}, fmt.Errorf("type '%s' requires exactly %d value(s), but the configuration specifies %d",
			r.Type, len(ds.Sources), len(r.ValuesFrom))
	}

	ra := resultArea{ds: ds}
	if ra.instancesPos, err = columnPositions(r.InstancesFrom, columns); err != nil {
		return resultArea{}, err
	}
	if ra.valuesPos, err = columnPositions(r.ValuesFrom, columns); err != nil {
		return resultArea{}, err
	}
	if ra.metaPos, err = columnPositions(r.MetadataFrom, columns); err != nil {
		return resultArea{}, err
	}
	return ra, nil
}

func columnPositions(names, columns []string) ([]int, error) {
	pos := make([]int, len(names))
	for i, name := range names {
		pos[i] = -1
		for j, col := range columns {
			if strings.EqualFold(name, col) {
				pos[i] = j
				break
			}
		}
		if pos[i] < 0 {
			return nil, fmt.Errorf("column '%s' could not be found", name)
		}
	}
	return pos, nil
}

// Handle builds and emits one value list per result from a row. It fails only when
// every result of the query failed.
func (e *Engine) Handle(ctx context.Context, q *Query, area *PreparationArea, values []string) error {
	if q == nil || area == nil {
		return fmt.Errorf("%w: nil query or preparation area", metric.ErrInvalid)
	}
	if !area.prepared || area.columnNum < 1 {
		return fmt.Errorf("query '%s': %w", q.Name, ErrNotPrepared)
	}
	if len(values) != area.columnNum {
		return fmt.Errorf("query '%s': got %d column values, prepared for %d", q.Name, len(values), area.columnNum)
	}

	success := 0
	for i, r := range q.Results {
		if err := e.handleResult(ctx, r, area, &area.results[i], values); err != nil {
			e.Errorf("query '%s' (%s): %v", q.Name, area.dbName, err)
			continue
		}
		success++
	}

	if success == 0 {
		return fmt.Errorf("query '%s' (%s): %w", q.Name, area.dbName, ErrAllFailed)
	}
	return nil
}

func (e *Engine) handleResult(ctx context.Context, r *Result, area *PreparationArea, ra *resultArea, values []string) error {
	vl := &metric.ValueList{
		Host:           area.host,
		Plugin:         area.plugin,
		PluginInstance: area.dbName,
		Type:           r.Type,
		TypeInstance:   typeInstance(r.InstancePrefix, ra.instancesPos, values),
		Interval:       area.interval,
		Values:         make([]metric.Value, len(ra.valuesPos)),
	}

	for i, pos := range ra.valuesPos {
		v, err := metric.ParseValue(values[pos], ra.ds.Sources[i].Type)
		if err != nil {
			return fmt.Errorf("parsing '%s' as %s failed: %w", values[pos], ra.ds.Sources[i].Type, err)
		}
		vl.Values[i] = v
	}

	if len(ra.metaPos) > 0 {
		vl.Meta = meta.New()
		for i, pos := range ra.metaPos {
			if err := vl.Meta.AddString(r.MetadataFrom[i], values[pos]); err != nil {
				return err
			}
		}
	}

	return e.Emitter.DispatchValues(ctx, vl)
}

func typeInstance(prefix string, positions []int, values []string) string {
	parts := make([]string, 0, len(positions)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, pos := range positions {
		parts = append(parts, values[pos])
	}
	return strmutil.Truncate(strings.Join(parts, "-"), metric.MaxNameLen)
}

// Finish releases the column bindings of area.
func (e *Engine) Finish(q *Query, area *PreparationArea) {
	if q == nil || area == nil {
		return
	}
	area.prepared = false
	area.columnNum = 0
	area.host, area.plugin, area.dbName = "", "", ""
	area.interval = 0
	for i := range area.results {
		area.results[i] = resultArea{}
	}
}

// Execute runs the statement of q, prepares area from the returned columns and handles
// every row. It returns the number of rows for which at least one result was emitted.
func (e *Engine) Execute(ctx context.Context, db Queryer, q *Query, area *PreparationArea, host, plugin, dbName string, interval time.Duration) (int, error) {
	var handled int
	defer e.Finish(q, area)

	_, err := QueryRows(ctx, db, q.Statement, func(columns []string) (func([]string) error, error) {
		if err := e.Prepare(q, area, host, plugin, dbName, columns, interval); err != nil {
			return nil, err
		}
		return func(values []string) error {
			if err := e.Handle(ctx, q, area, values); err != nil {
				e.Warning(err)
				return nil
			}
			handled++
			return nil
		}, nil
	})
	if err != nil {
		return handled, fmt.Errorf("query '%s': %w", q.Name, err)
	}
	return handled, nil
}

// ExecuteAll executes every query applicable to version, each with its own preparation
// area. A version of 0 means the server version is unknown and no query is skipped.
// A failing query does not stop the others; the call fails when none succeeded.
func (e *Engine) ExecuteAll(ctx context.Context, db Queryer, queries []*Query, areas []*PreparationArea, version uint32, host, plugin, dbName string, interval time.Duration) error {
	if len(queries) != len(areas) {
		return fmt.Errorf("%w: %d queries but %d preparation areas", metric.ErrInvalid, len(queries), len(areas))
	}

	var errs []error
	success := 0
	for i, q := range queries {
		if version != 0 && !CheckVersion(q, version) {
			continue
		}
		if _, err := e.Execute(ctx, db, q, areas[i], host, plugin, dbName, interval); err != nil {
			e.Warningf("%s: %v", dbName, err)
			errs = append(errs, err)
			continue
		}
		success++
	}

	switch {
	case success > 0:
		return nil
	case len(errs) > 0:
		return errors.Join(errs...)
	default:
		return fmt.Errorf("%s: %w (server version %d)", dbName, ErrNoQuery, version)
	}
}
