// SPDX-License-Identifier: GPL-3.0-or-later

package matchregex

import (
	"strings"
	"testing"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/meta"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseMatch(t *testing.T, config string) (*match, error) {
	t.Helper()
	root, err := conftree.Parse(strings.NewReader("<Match \"regex\">\n"+config+"\n</Match>\n"), "regex.conf")
	require.NoError(t, err)
	return newMatch(root.Children[0])
}

func TestMatch_Match(t *testing.T) {
	md := meta.New()
	require.NoError(t, md.AddString("label:env", "production"))
	require.NoError(t, md.AddSignedInt("shard", 12))

	vl := &metric.ValueList{
		Host:           "web01.example.com",
		Plugin:         "cpu",
		PluginInstance: "0",
		Type:           "percent",
		TypeInstance:   "idle",
		Meta:           md,
	}

	tests := map[string]struct {
		config string
		want   bool
	}{
		"single field":          {config: `Plugin "^cpu$"`, want: true},
		"partial regex":         {config: `Host "example"`, want: true},
		"all fields must match": {config: "Plugin \"^cpu$\"\nTypeInstance \"^(user|system)$\"", want: false},
		"repeated field":        {config: "Host \"^web\"\nHost \"com$\"", want: true},
		"alternation":           {config: `TypeInstance "^(idle|wait)$"`, want: true},
		"meta string":           {config: `MetaData "label:env" "^prod"`, want: true},
		"meta number":           {config: `MetaData "shard" "^1[0-9]$"`, want: true},
		"missing meta":          {config: `MetaData "label:zone" ".*"`, want: false},
		"invert":                {config: "Plugin \"^memory$\"\nInvert true", want: true},
		"invert matching":       {config: "Plugin \"^cpu$\"\nInvert true", want: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := parseMatch(t, test.config)
			require.NoError(t, err)

			got, err := m.Match(nil, vl)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestNewMatch_Errors(t *testing.T) {
	tests := map[string]struct {
		config string
	}{
		"empty":            {config: ``},
		"invalid regex":    {config: `Plugin "cpu("`},
		"number argument":  {config: `Plugin 1`},
		"two arguments":    {config: `Plugin "a" "b"`},
		"metadata one arg": {config: `MetaData "key"`},
		"unknown option":   {config: `Bogus "x"`},
		"bad invert":       {config: "Plugin \"x\"\nInvert \"sometimes\""},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseMatch(t, test.config)
			assert.Error(t, err)
		})
	}
}

func TestRegister(t *testing.T) {
	creator, ok := module.DefaultRegistry.Lookup(pluginName)
	require.True(t, ok)

	factories := filterchain.NewFactories()
	h := &module.Host{Registry: registry.New(), Name: pluginName, Factories: factories}
	require.NoError(t, creator.Register(h))

	assert.Error(t, factories.RegisterMatch(matchName, nil), "regex is registered")
}
