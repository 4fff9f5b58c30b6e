// SPDX-License-Identifier: GPL-3.0-or-later

package typesdb

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	r := NewDefault()

	for _, typ := range []string{"gauge", "counter", "derive", "absolute", "if_octets", "load", "memcached_octets"} {
		_, err := r.Get(typ)
		assert.NoErrorf(t, err, "type %s", typ)
	}

	ds, err := r.Get("if_octets")
	require.NoError(t, err)
	require.Len(t, ds.Sources, 2)
	assert.Equal(t, "rx", ds.Sources[0].Name)
	assert.Equal(t, metric.DSTypeDerive, ds.Sources[0].Type)
	assert.Equal(t, 0.0, ds.Sources[0].Min)
	assert.True(t, math.IsNaN(ds.Sources[0].Max))
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	ds := &metric.DataSet{Type: "my_type", Sources: []metric.DataSource{metric.NewDataSource("value", metric.DSTypeGauge)}}

	require.NoError(t, r.Register(ds))
	require.NoError(t, r.Register(&metric.DataSet{Type: "my_type", Sources: []metric.DataSource{metric.NewDataSource("VALUE", metric.DSTypeGauge)}}))

	err := r.Register(&metric.DataSet{Type: "my_type", Sources: []metric.DataSource{metric.NewDataSource("value", metric.DSTypeDerive)}})
	assert.ErrorIs(t, err, ErrConflict)

	err = r.Register(&metric.DataSet{Type: "empty"})
	assert.ErrorIs(t, err, metric.ErrInvalid)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"my_type"}, r.Types())
}

func TestRegistry_Parse(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    []string
		wantErr bool
	}{
		"valid": {
			input: "# comment\n\nfoo value:GAUGE:0:U\nbar rx:DERIVE:0:U, tx:DERIVE:0:U\n",
			want:  []string{"bar", "foo"},
		},
		"no sources":   {input: "foo\n", wantErr: true},
		"bad kind":     {input: "foo value:FLOAT:0:U\n", wantErr: true},
		"bad bound":    {input: "foo value:GAUGE:x:U\n", wantErr: true},
		"missing part": {input: "foo value:GAUGE:0\n", wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			r := New()
			err := r.Parse(strings.NewReader(test.input), "test.db")
			if test.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "test.db:")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, r.Types())
		})
	}
}

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.db")
	require.NoError(t, os.WriteFile(path, []byte("gauge value:GAUGE:-10:10\n"), 0o644))

	r := NewDefault()
	require.NoError(t, r.LoadFile(path))

	ds, err := r.Get("gauge")
	require.NoError(t, err)
	assert.Equal(t, -10.0, ds.Sources[0].Min)

	assert.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "missing.db")))
}
