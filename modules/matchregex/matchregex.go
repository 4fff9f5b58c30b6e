// SPDX-License-Identifier: GPL-3.0-or-later

// Package matchregex provides the "regex" match: every configured regular expression
// has to match its identifier field.
//
//	<Match "regex">
//	  Plugin "^cpu$"
//	  TypeInstance "^(idle|wait)$"
//	  MetaData "label:env" "^prod"
//	  Invert false
//	</Match>
package matchregex

import (
	"errors"
	"strings"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/matcher"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

const (
	pluginName = "match_regex"
	matchName  = "regex"
)

func init() {
	module.Register(pluginName, module.Creator{
		Register: func(h *module.Host) error {
			return h.RegisterMatch(matchName, func(ci *conftree.Item) (filterchain.Match, error) {
				return newMatch(ci)
			})
		},
		Description: "matches identifier fields and meta data against regular expressions",
	})
}

type field int

const (
	fieldHost field = iota
	fieldPlugin
	fieldPluginInstance
	fieldType
	fieldTypeInstance
)

var fieldKeys = map[string]field{
	"host":           fieldHost,
	"plugin":         fieldPlugin,
	"plugininstance": fieldPluginInstance,
	"type":           fieldType,
	"typeinstance":   fieldTypeInstance,
}

func (f field) value(vl *metric.ValueList) string {
	switch f {
	case fieldHost:
		return vl.Host
	case fieldPlugin:
		return vl.Plugin
	case fieldPluginInstance:
		return vl.PluginInstance
	case fieldType:
		return vl.Type
	default:
		return vl.TypeInstance
	}
}

type fieldMatcher struct {
	field field
	m     matcher.Matcher
}

type metaMatcher struct {
	key string
	m   matcher.Matcher
}

type match struct {
	fields []fieldMatcher
	meta   []metaMatcher
	invert bool
}

func newMatch(ci *conftree.Item) (*match, error) {
	m := &match{}

	var errs []error
	for _, child := range ci.Children {
		key := strings.ToLower(child.Key)
		if f, ok := fieldKeys[key]; ok {
			rm, err := compile(child, 0)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			m.fields = append(m.fields, fieldMatcher{field: f, m: rm})
			continue
		}

		switch key {
		case "metadata":
			if len(child.Values) != 2 {
				errs = append(errs, conftree.Errorf(child, "expected a key and a regular expression"))
				continue
			}
			metaKey := child.Values[0].Text()
			rm, err := compile(child, 1)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			m.meta = append(m.meta, metaMatcher{key: metaKey, m: rm})
		case "invert":
			var err error
			if m.invert, err = conftree.GetBoolean(child); err != nil {
				errs = append(errs, err)
			}
		default:
			errs = append(errs, conftree.Errorf(child, "unknown %s option", matchName))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(m.fields) == 0 && len(m.meta) == 0 {
		return nil, conftree.Errorf(ci, "no regular expressions configured")
	}
	return m, nil
}

func compile(ci *conftree.Item, idx int) (matcher.Matcher, error) {
	if idx >= len(ci.Values) || (idx == 0 && len(ci.Values) != 1) {
		return nil, conftree.Errorf(ci, "expected exactly one regular expression")
	}
	v := ci.Values[idx]
	if v.Type != conftree.String {
		return nil, conftree.Errorf(ci, "expected a string argument, got a %s", v.Type)
	}
	m, err := matcher.NewRegExpMatcher(v.String)
	if err != nil {
		return nil, conftree.Errorf(ci, "invalid regular expression %q: %v", v.String, err)
	}
	return m, nil
}

// Match reports whether all expressions match, negated when Invert is set. A meta data
// key missing from vl does not match.
func (m *match) Match(_ *metric.DataSet, vl *metric.ValueList) (bool, error) {
	return m.matchAll(vl) != m.invert, nil
}

func (m *match) matchAll(vl *metric.ValueList) bool {
	for _, fm := range m.fields {
		if !fm.m.MatchString(fm.field.value(vl)) {
			return false
		}
	}
	for _, mm := range m.meta {
		s, err := vl.Meta.AsString(mm.key)
		if err != nil || !mm.m.MatchString(s) {
			return false
		}
	}
	return true
}
