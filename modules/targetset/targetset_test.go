// SPDX-License-Identifier: GPL-3.0-or-later

package targetset

import (
	"strings"
	"testing"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTarget(t *testing.T, config string) (*target, error) {
	t.Helper()
	root, err := conftree.Parse(strings.NewReader("<Target \"set\">\n"+config+"\n</Target>\n"), "set.conf")
	require.NoError(t, err)
	return newTarget(root.Children[0])
}

func testValueList(t *testing.T) *metric.ValueList {
	md := meta.New()
	require.NoError(t, md.AddString("label:env", "prod"))
	require.NoError(t, md.AddString("tmp", "x"))
	return &metric.ValueList{
		Host:           "web01",
		Plugin:         "cpu",
		PluginInstance: "0",
		Type:           "percent",
		TypeInstance:   "idle",
		Meta:           md,
	}
}

func TestTarget_Invoke(t *testing.T) {
	tests := map[string]struct {
		config string
		check  func(t *testing.T, vl *metric.ValueList)
	}{
		"literal host": {
			config: `Host "aggregated"`,
			check: func(t *testing.T, vl *metric.ValueList) {
				assert.Equal(t, "aggregated", vl.Host)
				assert.Equal(t, "cpu", vl.Plugin)
			},
		},
		"templates use the original fields": {
			config: "Plugin \"%{plugin}-%{plugin_instance}\"\nPluginInstance \"%{meta:label:env}\"\nTypeInstance \"%{host}_%{type_instance}\"",
			check: func(t *testing.T, vl *metric.ValueList) {
				assert.Equal(t, "cpu-0", vl.Plugin)
				assert.Equal(t, "prod", vl.PluginInstance)
				assert.Equal(t, "web01_idle", vl.TypeInstance)
			},
		},
		"unknown reference kept": {
			config: `Type "%{nope}-%{meta:missing}-%{type}"`,
			check: func(t *testing.T, vl *metric.ValueList) {
				assert.Equal(t, "%{nope}-%{meta:missing}-percent", vl.Type)
			},
		},
		"unterminated reference": {
			config: `TypeInstance "x%{type"`,
			check: func(t *testing.T, vl *metric.ValueList) {
				assert.Equal(t, "x%{type", vl.TypeInstance)
			},
		},
		"meta data": {
			config: "MetaData \"source\" \"%{host}\"\nDeleteMetaData \"tmp\"\nDeleteMetaData \"absent\"",
			check: func(t *testing.T, vl *metric.ValueList) {
				s, err := vl.Meta.GetString("source")
				require.NoError(t, err)
				assert.Equal(t, "web01", s)
				assert.False(t, vl.Meta.Exists("tmp"))
				assert.True(t, vl.Meta.Exists("label:env"))
			},
		},
		"long values are truncated": {
			config: `Host "` + strings.Repeat("h", 100) + `"`,
			check: func(t *testing.T, vl *metric.ValueList) {
				assert.Len(t, vl.Host, metric.MaxNameLen)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tgt, err := parseTarget(t, test.config)
			require.NoError(t, err)

			vl := testValueList(t)
			status, err := tgt.Invoke(nil, vl)
			require.NoError(t, err)
			assert.Equal(t, filterchain.Continue, status)
			test.check(t, vl)
		})
	}
}

func TestTarget_MetaIsCopied(t *testing.T) {
	tgt, err := parseTarget(t, `MetaData "k" "v"`)
	require.NoError(t, err)

	vl := testValueList(t)
	orig := vl.Meta
	_, err = tgt.Invoke(nil, vl)
	require.NoError(t, err)

	assert.False(t, orig.Exists("k"))
	assert.True(t, vl.Meta.Exists("k"))

	bare := &metric.ValueList{Plugin: "p"}
	_, err = tgt.Invoke(nil, bare)
	require.NoError(t, err)
	assert.True(t, bare.Meta.Exists("k"))
}

func TestNewTarget_Errors(t *testing.T) {
	tests := map[string]struct {
		config string
	}{
		"empty":            {config: ``},
		"unknown option":   {config: `Bogus "x"`},
		"metadata one arg": {config: `MetaData "k"`},
		"host number":      {config: `Host 1`},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseTarget(t, test.config)
			assert.Error(t, err)
		})
	}
}
