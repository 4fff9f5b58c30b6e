// SPDX-License-Identifier: GPL-3.0-or-later

// Package dispatch is the bus between read callbacks and write callbacks. Value lists are
// normalised, checked against their data set, run through the pre-cache chain, stored in
// the value cache and handed to the post-cache chain or to every writer.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/global"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/agent/valuecache"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

var ErrDropped = errors.New("value dropped: write queue limit reached")

// DataSets looks up the schema of a type.
type DataSets interface {
	Get(typ string) (*metric.DataSet, error)
}

type Config struct {
	Registry *registry.Registry
	Types    DataSets
	Cache    *valuecache.Cache
	Options  *global.Options
}

type Bus struct {
	*logger.Logger

	reg     *registry.Registry
	types   DataSets
	cache   *valuecache.Cache
	opts    *global.Options
	chains  atomic.Pointer[filterchain.Set]
	limiter *limiter

	defaultWrite  *filterchain.WriteTarget
	dropComplaint *logger.Complainer
	tooOld        *logger.Complainer

	now func() cdtime.Time
}

func New(cfg Config) *Bus {
	opts := cfg.Options
	if opts == nil {
		opts = global.Get()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = valuecache.New()
	}

	b := &Bus{
		Logger:        logger.New().With(slog.String("component", "dispatch")),
		reg:           cfg.Registry,
		types:         cfg.Types,
		cache:         cache,
		opts:          opts,
		limiter:       newLimiter(opts.WriteQueueLimitLow, opts.WriteQueueLimitHigh),
		dropComplaint: logger.NewComplainer(time.Minute),
		tooOld:        logger.NewComplainer(time.Minute),
		now:           cdtime.Now,
	}
	b.defaultWrite = filterchain.NewWriteTarget(b.Logger, b, nil)
	return b
}

// SetChains installs the filter chains. A nil set disables filtering.
func (b *Bus) SetChains(set *filterchain.Set) { b.chains.Store(set) }

func (b *Bus) Cache() *valuecache.Cache { return b.cache }

type Stats struct {
	InFlight int64
	Dropped  uint64
	Cached   int
}

func (b *Bus) Stats() Stats {
	return Stats{
		InFlight: b.limiter.inflight.Load(),
		Dropped:  b.limiter.dropped.Load(),
		Cached:   b.cache.Len(),
	}
}

// DispatchValues passes a copy of vl through the pipeline. Missing host, time and interval
// are filled in from the global options, the read context and the clock.
func (b *Bus) DispatchValues(ctx context.Context, vl *metric.ValueList) error {
	if vl == nil {
		return fmt.Errorf("%w: nil value list", metric.ErrInvalid)
	}
	if b.limiter.shouldDrop() {
		b.Complain(b.dropComplaint, "dropping values of '%s': write queue limit reached (%d dropped so far)",
			vl.Identifier(), b.limiter.dropped.Load())
		return ErrDropped
	}

	b.limiter.acquire()
	defer b.limiter.release()

	v := vl.Clone()
	b.normalize(ctx, v)
	return b.process(v)
}

func (b *Bus) normalize(ctx context.Context, vl *metric.ValueList) {
	if vl.Host == "" {
		vl.Host = b.opts.Hostname
	}
	if vl.Time == 0 {
		vl.Time = b.now()
	}
	if vl.Interval == 0 {
		if rc, ok := ReadContextFrom(ctx); ok && rc.Interval > 0 {
			vl.Interval = cdtime.FromDuration(rc.Interval)
		} else {
			vl.Interval = cdtime.FromDuration(b.opts.Interval)
		}
	}
	vl.Truncate()
}

func (b *Bus) process(vl *metric.ValueList) error {
	if vl.Plugin == "" || vl.Type == "" {
		return fmt.Errorf("%w: value list '%s' has no plugin or type", metric.ErrInvalid, vl.Identifier())
	}
	ds, err := b.types.Get(vl.Type)
	if err != nil {
		return fmt.Errorf("dispatching '%s': %w", vl.Identifier(), err)
	}
	if err := ds.Check(vl); err != nil {
		return fmt.Errorf("dispatching '%s': %w", vl.Identifier(), err)
	}

	chains := b.chains.Load()

	if pre := chains.Get(b.opts.PreCacheChain); pre != nil {
		if pre.Process(ds, vl) == filterchain.Stop {
			return nil
		}
	}

	if err := b.cache.Update(ds, vl); err != nil {
		if errors.Is(err, valuecache.ErrTooOld) {
			b.Complain(b.tooOld, "value cache: %v", err)
		} else {
			b.Warningf("value cache: %v", err)
		}
	} else {
		b.ReleaseComplaint(b.tooOld, "value cache: values are in order again")
	}

	if post := chains.Get(b.opts.PostCacheChain); post != nil {
		post.Process(ds, vl)
		return nil
	}
	_, err = b.defaultWrite.Invoke(ds, vl)
	return err
}

// Write hands vl to the named write callbacks, or to all of them if plugins is empty.
// Every writer is called even if another one fails.
func (b *Bus) Write(ds *metric.DataSet, vl *metric.ValueList, plugins []string) error {
	writers := b.reg.List(registry.KindWrite)
	if len(writers) == 0 {
		return filterchain.ErrNoWriters
	}

	var errs []error
	for _, name := range plugins {
		if !slices.ContainsFunc(writers, func(e *registry.Entry) bool { return strings.EqualFold(e.Name, name) }) {
			errs = append(errs, fmt.Errorf("write callback '%s': %w", name, registry.ErrNotFound))
		}
	}

	for _, e := range writers {
		if len(plugins) > 0 && !slices.ContainsFunc(plugins, func(p string) bool { return strings.EqualFold(e.Name, p) }) {
			continue
		}
		fn, ok := e.Func.(registry.WriteFunc)
		if !ok || !e.Begin() {
			continue
		}
		err := fn(ds, vl, e.UserData)
		e.End()
		if err != nil {
			errs = append(errs, fmt.Errorf("write callback '%s': %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

// DispatchMetricFamily dispatches every metric of fam as a single-value list with
// plugin set to the family name and type named after the value kind. The family is
// not retained.
func (b *Bus) DispatchMetricFamily(ctx context.Context, fam *metric.Family) error {
	if fam == nil || fam.Name == "" {
		return fmt.Errorf("%w: metric family without name", metric.ErrInvalid)
	}

	var errs []error
	for _, m := range fam.Metrics {
		vl := &metric.ValueList{
			Plugin:   fam.Name,
			Type:     familyValueType(m.Value.Kind),
			Time:     m.Time,
			Interval: m.Interval,
			Values:   []metric.Value{m.Value},
			Labels:   m.Labels,
		}
		if err := b.DispatchValues(ctx, vl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// familyValueType names the single-source type of the default types database that
// matches kind.
func familyValueType(kind metric.DSType) string {
	switch kind {
	case metric.DSTypeCounter:
		return "counter"
	case metric.DSTypeDerive:
		return "derive"
	case metric.DSTypeAbsolute:
		return "absolute"
	default:
		return "gauge"
	}
}

type NamedValue struct {
	Name  string
	Value metric.Value
}

// DispatchMultivalue dispatches one value list per value, using the name as type instance.
// With storePercentage the values are dispatched as "percent" gauges relative to their sum.
// Values whose kind differs from kind are skipped.
func (b *Bus) DispatchMultivalue(ctx context.Context, tmpl *metric.ValueList, storePercentage bool, kind metric.DSType, values ...NamedValue) error {
	if tmpl == nil {
		return fmt.Errorf("%w: nil template", metric.ErrInvalid)
	}
	if storePercentage && kind != metric.DSTypeGauge {
		return fmt.Errorf("%w: percentages need gauge values", metric.ErrInvalid)
	}

	var sum float64
	if storePercentage {
		for _, nv := range values {
			if nv.Value.Kind == kind && !math.IsNaN(nv.Value.Gauge) {
				sum += nv.Value.Gauge
			}
		}
	}

	var errs []error
	for _, nv := range values {
		if nv.Value.Kind != kind {
			errs = append(errs, fmt.Errorf("%w: '%s' is a %s, not a %s", metric.ErrInvalid, nv.Name, nv.Value.Kind, kind))
			continue
		}
		vl := tmpl.Clone()
		vl.TypeInstance = nv.Name
		vl.Values = []metric.Value{nv.Value}
		if storePercentage {
			vl.Type = "percent"
			if sum != 0 {
				vl.Values[0] = metric.Gauge(nv.Value.Gauge * 100 / sum)
			} else {
				vl.Values[0] = metric.GaugeNaN()
			}
		}
		if err := b.DispatchValues(ctx, vl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
