// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"fmt"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
)

type FamilyKind int

const (
	KindUntyped FamilyKind = iota
	KindGauge
	KindCounter
)

func (k FamilyKind) String() string {
	switch k {
	case KindGauge:
		return "gauge"
	case KindCounter:
		return "counter"
	default:
		return "untyped"
	}
}

// Family groups metrics sharing a name. Families are built per read and
// discarded after dispatch.
type Family struct {
	Name    string
	Help    string
	Unit    string
	Kind    FamilyKind
	Metrics []Metric
}

type Metric struct {
	Labels   Labels
	Time     cdtime.Time
	Interval cdtime.Time
	Value    Value
}

// LabelSet adds or overrides a label of m.
func (m *Metric) LabelSet(name, value string) error {
	return m.Labels.Set(name, value)
}

// Identity renders name{label="value",...} with labels sorted by name.
func (m *Metric) Identity(fam *Family) string {
	return fam.Name + m.Labels.String()
}

func (m Metric) clone() Metric {
	m.Labels = m.Labels.Clone()
	return m
}

// Append adds a copy of m to the family.
func (f *Family) Append(m Metric) {
	f.Metrics = append(f.Metrics, m.clone())
}

// Reset drops all metrics and keeps the family metadata.
func (f *Family) Reset() {
	f.Metrics = f.Metrics[:0]
}

func (f *Family) Clone() *Family {
	c := *f
	c.Metrics = make([]Metric, 0, len(f.Metrics))
	for _, m := range f.Metrics {
		c.Metrics = append(c.Metrics, m.clone())
	}
	return &c
}

// FamilyAppend clones base (which may be nil), adds or overrides one label, sets
// the value and appends the result to fam.
func FamilyAppend(fam *Family, labelName, labelValue string, value Value, base *Metric) error {
	if fam == nil {
		return fmt.Errorf("%w: nil family", ErrInvalid)
	}
	var m Metric
	if base != nil {
		m = base.clone()
	}
	if labelName != "" {
		if err := m.Labels.Set(labelName, labelValue); err != nil {
			return err
		}
	}
	m.Value = value
	fam.Metrics = append(fam.Metrics, m)
	return nil
}
