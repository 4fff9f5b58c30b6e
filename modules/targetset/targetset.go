// SPDX-License-Identifier: GPL-3.0-or-later

// Package targetset provides the "set" target which rewrites identifier fields and
// meta data. Values may refer to the current fields as %{host}, %{plugin},
// %{plugin_instance}, %{type}, %{type_instance} and %{meta:<key>}.
//
//	<Target "set">
//	  PluginInstance "%{plugin_instance}-%{meta:label:env}"
//	  MetaData "source" "collectd"
//	  DeleteMetaData "tmp"
//	</Target>
package targetset

import (
	"errors"
	"strings"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

const (
	pluginName = "target_set"
	targetName = "set"
)

func init() {
	module.Register(pluginName, module.Creator{
		Register: func(h *module.Host) error {
			return h.RegisterTarget(targetName, func(ci *conftree.Item) (filterchain.Target, error) {
				return newTarget(ci)
			})
		},
		Description: "sets identifier fields and meta data",
	})
}

type metaValue struct {
	key   string
	value string
}

type target struct {
	host           *string
	plugin         *string
	pluginInstance *string
	typ            *string
	typeInstance   *string

	setMeta    []metaValue
	deleteMeta []string
}

func newTarget(ci *conftree.Item) (*target, error) {
	t := &target{}

	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "host":
			t.host, err = getTemplate(child)
		case "plugin":
			t.plugin, err = getTemplate(child)
		case "plugininstance":
			t.pluginInstance, err = getTemplate(child)
		case "type":
			t.typ, err = getTemplate(child)
		case "typeinstance":
			t.typeInstance, err = getTemplate(child)
		case "metadata":
			if len(child.Values) != 2 {
				err = conftree.Errorf(child, "expected a key and a value")
				break
			}
			t.setMeta = append(t.setMeta, metaValue{key: child.Values[0].Text(), value: child.Values[1].Text()})
		case "deletemetadata":
			var key string
			if key, err = conftree.GetString(child); err == nil {
				t.deleteMeta = append(t.deleteMeta, key)
			}
		default:
			err = conftree.Errorf(child, "unknown %s option", targetName)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if t.empty() {
		return nil, conftree.Errorf(ci, "nothing to set")
	}
	return t, nil
}

func getTemplate(ci *conftree.Item) (*string, error) {
	s, err := conftree.GetString(ci)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *target) empty() bool {
	return t.host == nil && t.plugin == nil && t.pluginInstance == nil && t.typ == nil &&
		t.typeInstance == nil && len(t.setMeta) == 0 && len(t.deleteMeta) == 0
}

// Invoke expands all templates against the unmodified value list before applying them.
func (t *target) Invoke(_ *metric.DataSet, vl *metric.ValueList) (filterchain.Status, error) {
	orig := *vl

	set := func(dst *string, tmpl *string) {
		if tmpl != nil {
			*dst = expand(*tmpl, &orig)
		}
	}
	set(&vl.Host, t.host)
	set(&vl.Plugin, t.plugin)
	set(&vl.PluginInstance, t.pluginInstance)
	set(&vl.Type, t.typ)
	set(&vl.TypeInstance, t.typeInstance)
	vl.Truncate()

	if len(t.setMeta) > 0 || len(t.deleteMeta) > 0 {
		md := vl.Meta.Clone()
		if md == nil {
			md = meta.New()
		}
		var errs []error
		for _, mv := range t.setMeta {
			errs = append(errs, md.AddString(mv.key, expand(mv.value, &orig)))
		}
		for _, key := range t.deleteMeta {
			if err := md.Delete(key); err != nil && !errors.Is(err, meta.ErrNotFound) {
				errs = append(errs, err)
			}
		}
		vl.Meta = md
		if err := errors.Join(errs...); err != nil {
			return filterchain.Continue, err
		}
	}
	return filterchain.Continue, nil
}

// expand replaces %{...} references. Unknown references are kept verbatim.
func expand(tmpl string, vl *metric.ValueList) string {
	if !strings.Contains(tmpl, "%{") {
		return tmpl
	}

	var sb strings.Builder
	for {
		i := strings.Index(tmpl, "%{")
		if i < 0 {
			sb.WriteString(tmpl)
			return sb.String()
		}
		j := strings.IndexByte(tmpl[i:], '}')
		if j < 0 {
			sb.WriteString(tmpl)
			return sb.String()
		}
		sb.WriteString(tmpl[:i])
		ref := tmpl[i+2 : i+j]
		if v, ok := lookup(ref, vl); ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(tmpl[i : i+j+1])
		}
		tmpl = tmpl[i+j+1:]
	}
}

func lookup(ref string, vl *metric.ValueList) (string, bool) {
	switch ref {
	case "host":
		return vl.Host, true
	case "plugin":
		return vl.Plugin, true
	case "plugin_instance":
		return vl.PluginInstance, true
	case "type":
		return vl.Type, true
	case "type_instance":
		return vl.TypeInstance, true
	}
	if key, ok := strings.CutPrefix(ref, "meta:"); ok {
		s, err := vl.Meta.AsString(key)
		return s, err == nil
	}
	return "", false
}
