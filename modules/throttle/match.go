// SPDX-License-Identifier: GPL-3.0-or-later

package throttle

import (
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/twmb/murmur3"
)

type match struct {
	okToThrottle bool
	trackedKeys  []string
	tracker      *tracker
}

// Match reports false for a throttleable value list while the tracker is throttling.
// Otherwise the fingerprint of vl is recorded and it matches.
func (m *match) Match(_ *metric.DataSet, vl *metric.ValueList) (bool, error) {
	hash, impact := m.fingerprint(vl)
	return m.tracker.observe(hash, impact, m.okToThrottle)
}

// fingerprint chains MurmurHash3 (seed 0) over the identifier fields and the string
// values of the tracked meta data keys. The impact is the sum of their lengths.
func (m *match) fingerprint(vl *metric.ValueList) (hash uint32, impact uint64) {
	add := func(s string) {
		hash = murmur3.SeedStringSum32(hash, s)
		impact += uint64(len(s))
	}

	add(vl.Host)
	add(vl.Plugin)
	add(vl.PluginInstance)
	add(vl.Type)
	add(vl.TypeInstance)

	for _, key := range m.trackedKeys {
		if vl.Meta.Type(key) != meta.TypeString {
			continue
		}
		if s, err := vl.Meta.GetString(key); err == nil {
			add(s)
		}
	}
	return hash, impact
}
