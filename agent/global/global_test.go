// SPDX-License-Identifier: GPL-3.0-or-later

package global

import (
	"strings"
	"testing"
	"time"

	"github.com/collectd/collectd-sub006/pkg/conftree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Apply(t *testing.T) {
	const cfg = `
Hostname "web01"
Interval 2.5
ReadThreads 8
WriteQueueLimitHigh 1000
WriteQueueLimitLow 800
TypesDB "/a/types.db" "/b/types.db"
AutoLoadPlugin true
PostCacheChain "Out"
LoadPlugin cpu
`
	root, err := conftree.Parse(strings.NewReader(cfg), "test.conf")
	require.NoError(t, err)

	o := Default()
	var unknown []string
	for _, ci := range root.Children {
		ok, err := o.Apply(ci)
		require.NoError(t, err, ci.Key)
		if !ok {
			unknown = append(unknown, ci.Key)
		}
	}

	assert.Equal(t, []string{"LoadPlugin"}, unknown)
	assert.Equal(t, "web01", o.Hostname)
	assert.Equal(t, 2500*time.Millisecond, o.Interval)
	assert.Equal(t, 8, o.ReadThreads)
	assert.EqualValues(t, 1000, o.WriteQueueLimitHigh)
	assert.EqualValues(t, 800, o.WriteQueueLimitLow)
	assert.Equal(t, []string{"/a/types.db", "/b/types.db"}, o.TypesDB)
	assert.True(t, o.AutoLoadPlugin)
	assert.Equal(t, "Out", o.PostCacheChain)
	assert.Equal(t, DefaultPreCacheChain, o.PreCacheChain)
}

func TestOptions_ApplyErrors(t *testing.T) {
	tests := map[string]string{
		"negative interval": "Interval -1",
		"zero threads":      "ReadThreads 0",
		"string interval":   `Interval "ten"`,
		"negative limit":    "WriteQueueLimitHigh -5",
		"bool hostname":     "Hostname true",
	}

	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			root, err := conftree.Parse(strings.NewReader(line), "test.conf")
			require.NoError(t, err)

			ok, err := Default().Apply(root.Children[0])
			assert.True(t, ok)
			assert.ErrorIs(t, err, conftree.ErrConfig)
		})
	}
}

func TestOptions_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"COLLECTD_HOSTNAME": "envhost",
		"COLLECTD_INTERVAL": "0.5",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	o := Default()
	require.NoError(t, o.ApplyEnv(lookup))
	assert.Equal(t, "envhost", o.Hostname)
	assert.False(t, o.FQDNLookup)
	assert.Equal(t, 500*time.Millisecond, o.Interval)

	env["COLLECTD_INTERVAL"] = "soon"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestOptions_Finalize(t *testing.T) {
	o := Default()
	o.Hostname = "fixed"
	o.Interval = time.Hour
	o.MaxReadInterval = time.Minute
	o.WriteQueueLimitHigh = 10
	o.WriteQueueLimitLow = 20

	require.NoError(t, o.Finalize())
	assert.Equal(t, "fixed", o.Hostname)
	assert.Equal(t, time.Hour, o.MaxReadInterval)
	assert.EqualValues(t, 10, o.WriteQueueLimitLow)
}

func TestSet(t *testing.T) {
	old := Get()
	defer Set(old)

	o := Default()
	o.Hostname = "x"
	Set(o)
	assert.Equal(t, "x", Hostname())
	assert.Equal(t, DefaultInterval, Interval())
}
