// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"strings"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/strmutil"
)

// ValueList is one time-stamped sample per data source of the data set named by Type.
// Empty string fields are omissions. Labels is only set for values that were
// dispatched as part of a metric family.
type ValueList struct {
	Host           string
	Plugin         string
	PluginInstance string
	Type           string
	TypeInstance   string
	Time           cdtime.Time
	Interval       cdtime.Time
	Values         []Value
	Meta           *meta.Data
	Labels         Labels
}

// Identifier renders host/plugin[-plugin_instance]/type[-type_instance].
func (vl *ValueList) Identifier() string {
	var sb strings.Builder
	sb.WriteString(vl.Host)
	sb.WriteByte('/')
	sb.WriteString(vl.Plugin)
	if vl.PluginInstance != "" {
		sb.WriteByte('-')
		sb.WriteString(vl.PluginInstance)
	}
	sb.WriteByte('/')
	sb.WriteString(vl.Type)
	if vl.TypeInstance != "" {
		sb.WriteByte('-')
		sb.WriteString(vl.TypeInstance)
	}
	if len(vl.Labels) > 0 {
		sb.WriteString(vl.Labels.String())
	}
	return sb.String()
}

// Clone returns a deep copy.
func (vl *ValueList) Clone() *ValueList {
	c := *vl
	c.Values = append([]Value(nil), vl.Values...)
	c.Meta = vl.Meta.Clone()
	c.Labels = vl.Labels.Clone()
	return &c
}

// Truncate bounds the identifier fields to MaxNameLen bytes, cutting on a character
// boundary.
func (vl *ValueList) Truncate() {
	for _, f := range []*string{&vl.Host, &vl.Plugin, &vl.PluginInstance, &vl.Type, &vl.TypeInstance} {
		*f = strmutil.Truncate(*f, MaxNameLen)
	}
}

// ParseIdentifier splits an identifier produced by Identifier (without labels).
func ParseIdentifier(s string) (*ValueList, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil, ErrInvalid
	}
	vl := &ValueList{Host: parts[0]}
	vl.Plugin, vl.PluginInstance, _ = strings.Cut(parts[1], "-")
	vl.Type, vl.TypeInstance, _ = strings.Cut(parts[2], "-")
	if vl.Host == "" || vl.Plugin == "" || vl.Type == "" {
		return nil, ErrInvalid
	}
	return vl, nil
}
