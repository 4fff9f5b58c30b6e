// SPDX-License-Identifier: GPL-3.0-or-later

package writeprometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/pkg/ignorelist"
	"github.com/collectd/collectd-sub006/pkg/metric"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// collection holds the latest sample of every series, grouped by family name.
type collection struct {
	mu        sync.Mutex
	families  map[string]*family
	staleness time.Duration
	plugins   *ignorelist.List
	now       func() time.Time
}

type family struct {
	name    string
	help    string
	typ     dto.MetricType
	samples map[string]*sample
}

type sample struct {
	labels    []*dto.LabelPair
	value     float64
	timestamp int64
	updated   time.Time
}

func newCollection(staleness time.Duration) *collection {
	return &collection{
		families:  make(map[string]*family),
		staleness: staleness,
		plugins:   ignorelist.New(false),
		now:       time.Now,
	}
}

func (c *collection) write(ds *metric.DataSet, vl *metric.ValueList, _ *registry.UserData) error {
	if len(ds.Sources) != len(vl.Values) {
		return fmt.Errorf("%s: %d values for %d data sources", vl.Identifier(), len(vl.Values), len(ds.Sources))
	}

	if c.plugins.Ignored(vl.Plugin) {
		return nil
	}

	labels := seriesLabels(vl)
	key := labelsKey(labels)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, src := range ds.Sources {
		name := familyName(vl, src)
		fam, ok := c.families[name]
		if !ok {
			fam = &family{
				name:    name,
				help:    fmt.Sprintf("write_prometheus plugin: '%s' Type: '%s', Dstype: '%s', Dsname: '%s'", vl.Plugin, vl.Type, strings.ToLower(src.Type.String()), src.Name),
				typ:     familyType(src.Type),
				samples: make(map[string]*sample),
			}
			c.families[name] = fam
		}
		fam.samples[key] = &sample{
			labels:    labels,
			value:     vl.Values[i].Float(),
			timestamp: vl.Time.Time().UnixMilli(),
			updated:   now,
		}
	}
	return nil
}

// gather drops stale samples and returns the remaining families sorted by name.
func (c *collection) gather() []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var mfs []*dto.MetricFamily
	for name, fam := range c.families {
		keys := make([]string, 0, len(fam.samples))
		for k, s := range fam.samples {
			if c.staleness > 0 && now.Sub(s.updated) > c.staleness {
				delete(fam.samples, k)
				continue
			}
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			delete(c.families, name)
			continue
		}
		sort.Strings(keys)

		mf := &dto.MetricFamily{
			Name: ptr(fam.name),
			Help: ptr(fam.help),
			Type: ptr(fam.typ),
		}
		for _, k := range keys {
			s := fam.samples[k]
			m := &dto.Metric{Label: s.labels, TimestampMs: ptr(s.timestamp)}
			if fam.typ == dto.MetricType_COUNTER {
				m.Counter = &dto.Counter{Value: ptr(s.value)}
			} else {
				m.Gauge = &dto.Gauge{Value: ptr(s.value)}
			}
			mf.Metric = append(mf.Metric, m)
		}
		mfs = append(mfs, mf)
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	return mfs
}

func (c *collection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	for _, mf := range c.gather() {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_, _ = w.Write(buf.Bytes())
}

// familyName is collectd_<plugin>_<type>[_<dsname>][_total].
func familyName(vl *metric.ValueList, src metric.DataSource) string {
	var sb strings.Builder
	sb.WriteString("collectd_")
	sb.WriteString(vl.Plugin)
	if vl.Plugin != vl.Type {
		sb.WriteByte('_')
		sb.WriteString(vl.Type)
	}
	if src.Name != "value" {
		sb.WriteByte('_')
		sb.WriteString(src.Name)
	}
	if src.Type != metric.DSTypeGauge {
		sb.WriteString("_total")
	}
	return sanitize(sb.String())
}

func familyType(t metric.DSType) dto.MetricType {
	if t == metric.DSTypeGauge {
		return dto.MetricType_GAUGE
	}
	return dto.MetricType_COUNTER
}

// seriesLabels maps the host to "instance", the plugin instance to a label named after
// the plugin and the type instance to "type" (or to the plugin label when there is no
// plugin instance). Labels of the value list are added as they are.
func seriesLabels(vl *metric.ValueList) []*dto.LabelPair {
	set := make(map[string]string)
	for _, l := range vl.Labels {
		set[sanitize(l.Name)] = l.Value
	}
	if vl.Host != "" {
		set[model.InstanceLabel] = vl.Host
	}
	plugin := sanitize(vl.Plugin)
	if vl.PluginInstance != "" {
		set[plugin] = vl.PluginInstance
	}
	if vl.TypeInstance != "" {
		if vl.PluginInstance == "" {
			set[plugin] = vl.TypeInstance
		} else {
			set["type"] = vl.TypeInstance
		}
	}

	pairs := make([]*dto.LabelPair, 0, len(set))
	for name, value := range set {
		pairs = append(pairs, &dto.LabelPair{Name: ptr(name), Value: ptr(value)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].GetName() < pairs[j].GetName() })
	return pairs
}

func labelsKey(pairs []*dto.LabelPair) string {
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(p.GetName())
		sb.WriteByte(0xff)
		sb.WriteString(p.GetValue())
		sb.WriteByte(0xff)
	}
	return sb.String()
}

// sanitize replaces every character not valid in a metric or label name with '_'.
func sanitize(s string) string {
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			sb.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func ptr[T any](v T) *T { return &v }
