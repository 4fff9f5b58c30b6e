// SPDX-License-Identifier: GPL-3.0-or-later

// Package valuecache keeps the last value, rate and out-of-band state of every
// dispatched value list, keyed by its identifier.
package valuecache

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

var (
	ErrNotFound = errors.New("value is not cached")
	ErrTooOld   = errors.New("value is not newer than the cached one")
)

// DefaultTimeout is the staleness multiplier of the "Timeout" option.
const DefaultTimeout = 2

type (
	Cache struct {
		*logger.Logger

		mu      sync.Mutex
		entries map[string]*entry

		now     func() cdtime.Time
		timeout int
	}

	entry struct {
		vl         *metric.ValueList // identity fields only
		values     []metric.Value
		rates      []float64
		lastTime   cdtime.Time // time of the value
		lastUpdate cdtime.Time // when the cache saw the value
		interval   cdtime.Time
		state      int
		hits       int
		meta       *meta.Data
	}

	// Name is an identifier together with the time of its last value.
	Name struct {
		Name string
		Time cdtime.Time
	}
)

const (
	StateUnknown = iota
	StateOkay
	StateWarning
	StateError
	StateMissing
)

func New() *Cache {
	return &Cache{
		Logger:  logger.New().With(slog.String("component", "value cache")),
		entries: make(map[string]*entry),
		now:     cdtime.Now,
		timeout: DefaultTimeout,
	}
}

// SetTimeout sets the number of intervals after which an entry is considered missing.
func (c *Cache) SetTimeout(n int) {
	if n <= 0 {
		n = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = n
}

// Update stores vl and computes its rates. Values not newer than the cached one are rejected.
func (c *Cache) Update(ds *metric.DataSet, vl *metric.ValueList) error {
	if err := ds.Check(vl); err != nil {
		return err
	}

	key := vl.Identifier()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.entries[key] = c.newEntry(vl)
		return nil
	}

	if vl.Time <= e.lastTime {
		return fmt.Errorf("%w: %s (%s <= %s)", ErrTooOld, key, vl.Time, e.lastTime)
	}

	dt := (vl.Time - e.lastTime).Seconds()
	for i, v := range vl.Values {
		e.rates[i] = rate(e.values[i], v, dt)
	}
	copy(e.values, vl.Values)
	e.lastTime = vl.Time
	e.lastUpdate = c.now()
	e.interval = vl.Interval
	return nil
}

func (c *Cache) newEntry(vl *metric.ValueList) *entry {
	e := &entry{
		vl:         identity(vl),
		values:     append([]metric.Value(nil), vl.Values...),
		rates:      make([]float64, len(vl.Values)),
		lastTime:   vl.Time,
		lastUpdate: c.now(),
		interval:   vl.Interval,
		meta:       meta.New(),
	}
	for i, v := range vl.Values {
		if v.Kind == metric.DSTypeGauge {
			e.rates[i] = v.Gauge
		} else {
			e.rates[i] = math.NaN()
		}
	}
	return e
}

// rate computes the per-second rate of cur since prev. Counter rates are NaN when the
// counter went backwards.
func rate(prev, cur metric.Value, dt float64) float64 {
	switch cur.Kind {
	case metric.DSTypeGauge:
		return cur.Gauge
	case metric.DSTypeCounter:
		if cur.Counter < prev.Counter {
			return math.NaN()
		}
		return float64(cur.Counter-prev.Counter) / dt
	case metric.DSTypeDerive:
		return float64(cur.Derive-prev.Derive) / dt
	case metric.DSTypeAbsolute:
		return float64(cur.Absolute) / dt
	}
	return math.NaN()
}

func identity(vl *metric.ValueList) *metric.ValueList {
	return &metric.ValueList{
		Host:           vl.Host,
		Plugin:         vl.Plugin,
		PluginInstance: vl.PluginInstance,
		Type:           vl.Type,
		TypeInstance:   vl.TypeInstance,
		Interval:       vl.Interval,
		Labels:         vl.Labels.Clone(),
	}
}

// Touch makes sure an entry without values exists for vl, e.g. to hold meta data.
func (c *Cache) Touch(vl *metric.ValueList) {
	key := vl.Identifier()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.lastUpdate = c.now()
		if vl.Time > e.lastTime {
			e.lastTime = vl.Time
		}
		return
	}
	c.entries[key] = c.newEntry(&metric.ValueList{
		Host:           vl.Host,
		Plugin:         vl.Plugin,
		PluginInstance: vl.PluginInstance,
		Type:           vl.Type,
		TypeInstance:   vl.TypeInstance,
		Time:           vl.Time,
		Interval:       vl.Interval,
		Labels:         vl.Labels,
	})
}

func (c *Cache) lookup(name string) (*entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

func (c *Cache) GetRate(vl *metric.ValueList) ([]float64, error) {
	return c.GetRateByName(vl.Identifier())
}

func (c *Cache) GetRateByName(name string) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), e.rates...), nil
}

func (c *Cache) GetValue(vl *metric.ValueList) ([]metric.Value, error) {
	return c.GetValueByName(vl.Identifier())
}

func (c *Cache) GetValueByName(name string) ([]metric.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]metric.Value(nil), e.values...), nil
}

// Names returns all identifiers with the time of their last value, sorted by name.
func (c *Cache) Names() []Name {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]Name, 0, len(c.entries))
	for k, e := range c.entries {
		names = append(names, Name{Name: k, Time: e.lastTime})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
	return names
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) GetState(vl *metric.ValueList) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(vl.Identifier())
	if err != nil {
		return StateUnknown, err
	}
	return e.state, nil
}

// SetState sets the state and returns the previous one.
func (c *Cache) SetState(vl *metric.ValueList, state int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(vl.Identifier())
	if err != nil {
		return StateUnknown, err
	}
	old := e.state
	e.state = state
	return old, nil
}

func (c *Cache) GetHits(vl *metric.ValueList) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(vl.Identifier())
	if err != nil {
		return 0, err
	}
	return e.hits, nil
}

// IncHits adds step to the hit counter and returns the previous value.
func (c *Cache) IncHits(vl *metric.ValueList, step int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(vl.Identifier())
	if err != nil {
		return 0, err
	}
	old := e.hits
	e.hits += step
	return old, nil
}

// GetMeta returns the meta data attached to the cache entry of vl. The returned
// value is shared and safe for concurrent use.
func (c *Cache) GetMeta(vl *metric.ValueList) (*meta.Data, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookup(vl.Identifier())
	if err != nil {
		return nil, err
	}
	return e.meta, nil
}

func (c *Cache) MetaAddString(vl *metric.ValueList, key, value string) error {
	md, err := c.GetMeta(vl)
	if err != nil {
		return err
	}
	return md.AddString(key, value)
}

func (c *Cache) MetaAddUnsignedInt(vl *metric.ValueList, key string, value uint64) error {
	md, err := c.GetMeta(vl)
	if err != nil {
		return err
	}
	return md.AddUnsignedInt(key, value)
}

func (c *Cache) MetaAddBoolean(vl *metric.ValueList, key string, value bool) error {
	md, err := c.GetMeta(vl)
	if err != nil {
		return err
	}
	return md.AddBoolean(key, value)
}

func (c *Cache) MetaGetString(vl *metric.ValueList, key string) (string, error) {
	md, err := c.GetMeta(vl)
	if err != nil {
		return "", err
	}
	return md.GetString(key)
}

func (c *Cache) MetaGetUnsignedInt(vl *metric.ValueList, key string) (uint64, error) {
	md, err := c.GetMeta(vl)
	if err != nil {
		return 0, err
	}
	return md.GetUnsignedInt(key)
}

func (c *Cache) MetaGetBoolean(vl *metric.ValueList, key string) (bool, error) {
	md, err := c.GetMeta(vl)
	if err != nil {
		return false, err
	}
	return md.GetBoolean(key)
}

// CheckTimeout removes entries that were not updated for timeout × interval and passes
// each of them to missing before removal, without holding the cache lock. Entries
// updated while missing runs are kept.
func (c *Cache) CheckTimeout(missing func(vl *metric.ValueList)) int {
	c.mu.Lock()
	now := c.now()
	var expired []string
	var vls []*metric.ValueList
	for k, e := range c.entries {
		if !c.isExpired(e, now) {
			continue
		}
		expired = append(expired, k)
		vl := e.vl.Clone()
		vl.Time = e.lastTime
		vls = append(vls, vl)
	}
	c.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	if missing != nil {
		for _, vl := range vls {
			missing(vl)
		}
	}

	c.mu.Lock()
	removed := 0
	for _, k := range expired {
		if e, ok := c.entries[k]; ok && c.isExpired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	c.Debugf("expired %d of %d stale values", removed, len(expired))
	return removed
}

func (c *Cache) isExpired(e *entry, now cdtime.Time) bool {
	if e.interval == 0 || e.lastUpdate > now {
		return false
	}
	return now-e.lastUpdate >= e.interval*cdtime.Time(c.timeout)
}
