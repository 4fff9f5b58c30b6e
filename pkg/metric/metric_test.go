// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := map[string]struct {
		text    string
		kind    DSType
		want    Value
		wantErr bool
	}{
		"gauge float":          {text: "1.5", kind: DSTypeGauge, want: Gauge(1.5)},
		"gauge newline":        {text: "2.0\n", kind: DSTypeGauge, want: Gauge(2)},
		"gauge garbage":        {text: "abc", kind: DSTypeGauge, wantErr: true},
		"counter":              {text: "42", kind: DSTypeCounter, want: Counter(42)},
		"counter hex":          {text: "0x10", kind: DSTypeCounter, want: Counter(16)},
		"counter from float":   {text: "1e3", kind: DSTypeCounter, want: Counter(1000)},
		"counter negative":     {text: "-1", kind: DSTypeCounter, wantErr: true},
		"counter fractional":   {text: "1.5", kind: DSTypeCounter, wantErr: true},
		"derive negative":      {text: " -7 ", kind: DSTypeDerive, want: Derive(-7)},
		"absolute":             {text: "9", kind: DSTypeAbsolute, want: Absolute(9)},
		"empty":                {text: "  ", kind: DSTypeGauge, wantErr: true},
		"unknown kind":         {text: "1", kind: DSType(42), wantErr: true},
		"derive not a number":  {text: "x1", kind: DSTypeDerive, wantErr: true},
		"absolute not integer": {text: "0.1", kind: DSTypeAbsolute, wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := ParseValue(test.text, test.kind)

			if test.wantErr {
				assert.True(t, errors.Is(err, ErrInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, v)
		})
	}
}

func TestParseValue_UnknownGauge(t *testing.T) {
	v, err := ParseValue("U", DSTypeGauge)
	require.NoError(t, err)
	assert.True(t, v.IsNaN())
}

func TestParseValues(t *testing.T) {
	ds := &DataSet{Type: "if_octets", Sources: []DataSource{
		NewDataSource("rx", DSTypeDerive),
		NewDataSource("tx", DSTypeDerive),
	}}

	var vl ValueList
	require.NoError(t, ParseValues("N:10:20", &vl, ds))
	assert.Equal(t, []Value{Derive(10), Derive(20)}, vl.Values)
	assert.True(t, vl.Time.IsZero())

	require.NoError(t, ParseValues("1700000000:1:2", &vl, ds))
	assert.Equal(t, 1700000000.0, vl.Time.Seconds())

	assert.ErrorIs(t, ParseValues("N:1", &vl, ds), ErrValueCount)
	assert.ErrorIs(t, ParseValues("N:U:1", &vl, ds), ErrInvalid)
}

func TestDataSet_Check(t *testing.T) {
	ds := &DataSet{Type: "gauge", Sources: []DataSource{NewDataSource("value", DSTypeGauge)}}

	assert.NoError(t, ds.Check(&ValueList{Type: "gauge", Values: []Value{Gauge(1)}}))
	assert.ErrorIs(t, ds.Check(&ValueList{Type: "gauge"}), ErrValueCount)
	assert.ErrorIs(t, ds.Check(&ValueList{Type: "gauge", Values: []Value{Counter(1)}}), ErrInvalid)
}

func TestDataSet_Validate(t *testing.T) {
	dup := &DataSet{Type: "t", Sources: []DataSource{
		NewDataSource("Value", DSTypeGauge),
		NewDataSource("value", DSTypeGauge),
	}}
	assert.ErrorIs(t, dup.Validate(), ErrInvalid, "names are case-insensitive")

	empty := &DataSet{Type: "t"}
	assert.ErrorIs(t, empty.Validate(), ErrInvalid)

	ok := &DataSet{Type: "t", Sources: []DataSource{NewDataSource("value", DSTypeGauge)}}
	assert.NoError(t, ok.Validate())
}

func TestDataSet_Equal(t *testing.T) {
	a := &DataSet{Type: "load", Sources: []DataSource{{Name: "shortterm", Type: DSTypeGauge, Min: 0, Max: math.NaN()}}}
	b := &DataSet{Type: "load", Sources: []DataSource{{Name: "shortterm", Type: DSTypeGauge, Min: 0, Max: math.NaN()}}}
	c := &DataSet{Type: "load", Sources: []DataSource{{Name: "shortterm", Type: DSTypeGauge, Min: 1, Max: math.NaN()}}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestLabels(t *testing.T) {
	var a, b Labels
	require.NoError(t, a.Set("b", "2"))
	require.NoError(t, a.Set("a", "1"))
	require.NoError(t, b.Set("a", "1"))
	require.NoError(t, b.Set("b", "2"))

	assert.Equal(t, 0, a.Compare(b), "insertion order is irrelevant")
	assert.Equal(t, `{a="1",b="2"}`, a.String())

	require.NoError(t, a.Set("a", "x"))
	v, ok := a.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Equal(t, 1, a.Compare(b))

	require.NoError(t, a.Set("a", ""))
	_, ok = a.Get("a")
	assert.False(t, ok)

	assert.ErrorIs(t, a.Set("", "v"), ErrInvalid)

	c := b.Clone()
	c.Reset()
	assert.Len(t, b, 2)
	assert.Empty(t, c)
}

func TestFamilyAppend(t *testing.T) {
	fam := &Family{Name: "if_octets", Kind: KindCounter}
	base := &Metric{}
	require.NoError(t, base.LabelSet("interface", "eth0"))

	require.NoError(t, FamilyAppend(fam, "direction", "rx", Counter(1), base))
	require.NoError(t, FamilyAppend(fam, "direction", "tx", Counter(2), base))
	require.NoError(t, FamilyAppend(fam, "", "", Counter(3), nil))

	require.Len(t, fam.Metrics, 3)
	assert.Equal(t, `if_octets{direction="rx",interface="eth0"}`, fam.Metrics[0].Identity(fam))
	assert.Equal(t, `if_octets{direction="tx",interface="eth0"}`, fam.Metrics[1].Identity(fam))
	assert.Equal(t, "if_octets", fam.Metrics[2].Identity(fam))
	assert.Len(t, base.Labels, 1, "base metric is not modified")

	clone := fam.Clone()
	fam.Reset()
	assert.Empty(t, fam.Metrics)
	assert.Len(t, clone.Metrics, 3)

	assert.ErrorIs(t, FamilyAppend(nil, "a", "b", Gauge(1), nil), ErrInvalid)
}

func TestValueList_Identifier(t *testing.T) {
	vl := &ValueList{Host: "h", Plugin: "cpu", PluginInstance: "0", Type: "cpu", TypeInstance: "idle"}
	assert.Equal(t, "h/cpu-0/cpu-idle", vl.Identifier())

	parsed, err := ParseIdentifier("h/cpu-0/cpu-idle")
	require.NoError(t, err)
	assert.Equal(t, "cpu", parsed.Plugin)
	assert.Equal(t, "0", parsed.PluginInstance)
	assert.Equal(t, "idle", parsed.TypeInstance)

	_, err = ParseIdentifier("h/cpu")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValueList_Truncate(t *testing.T) {
	tests := map[string]struct {
		host     string
		wantHost string
	}{
		"short is kept": {
			host:     "localhost",
			wantHost: "localhost",
		},
		"ascii is cut at the limit": {
			host:     strings.Repeat("a", MaxNameLen+10),
			wantHost: strings.Repeat("a", MaxNameLen),
		},
		"multi-byte character at the limit is dropped whole": {
			host:     strings.Repeat("a", MaxNameLen-1) + "éxyz",
			wantHost: strings.Repeat("a", MaxNameLen-1),
		},
		"three-byte characters": {
			host:     strings.Repeat("€", 30),
			wantHost: strings.Repeat("€", MaxNameLen/3),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			vl := &ValueList{Host: test.host, Plugin: "cpu", Type: "cpu"}
			vl.Truncate()

			assert.Equal(t, test.wantHost, vl.Host)
			assert.LessOrEqual(t, len(vl.Host), MaxNameLen)
			assert.True(t, utf8.ValidString(vl.Host))
			assert.Equal(t, "cpu", vl.Plugin)
		})
	}
}

func TestNotification_Validate(t *testing.T) {
	assert.NoError(t, (&Notification{Severity: SeverityWarning, Message: "x"}).Validate())
	assert.ErrorIs(t, (&Notification{Message: "x"}).Validate(), ErrInvalid)
	assert.ErrorIs(t, (&Notification{Severity: SeverityOkay}).Validate(), ErrInvalid)
}

func TestCounterDiff_Wraps(t *testing.T) {
	assert.Equal(t, uint64(2), CounterDiff(math.MaxUint64, 1))
	assert.Equal(t, uint64(5), CounterDiff(10, 15))
}
