// SPDX-License-Identifier: GPL-3.0-or-later

package latency

import (
	"math"
	"testing"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/conftree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v float64) cdtime.Time { return cdtime.FromSeconds(v / 1000) }

func newTestCounter(start cdtime.Time) *Counter {
	c := NewCounter()
	c.now = func() cdtime.Time { return start }
	c.Reset()
	return c
}

func TestCounter_Add(t *testing.T) {
	c := newTestCounter(0)

	c.Add(0)
	assert.Zero(t, c.Num())

	for _, v := range []float64{5, 1, 10} {
		c.Add(ms(v))
	}
	assert.Equal(t, uint64(3), c.Num())
	assert.Equal(t, ms(1), c.Min())
	assert.Equal(t, ms(10), c.Max())
	assert.InDelta(t, 0.016, c.Sum().Seconds(), 1e-9)
	assert.InDelta(t, 0.016/3, c.Average().Seconds(), 1e-9)
	assert.Equal(t, DefaultBinWidth, c.BinWidth())
}

func TestCounter_Add_GrowsBinWidth(t *testing.T) {
	c := newTestCounter(0)

	c.Add(cdtime.FromSeconds(0.5))
	assert.Equal(t, DefaultBinWidth, c.BinWidth())

	// 2s does not fit into 1000 bins of 1/1024s
	c.Add(2 * cdtime.Second)
	assert.Equal(t, DefaultBinWidth*4, c.BinWidth())
	assert.Equal(t, uint64(2), c.Num())

	// the 0.5s observation moved along with its bin
	assert.InDelta(t, 0.5, c.Percentile(50).Seconds(), c.BinWidth().Seconds())
}

func TestCounter_Reset(t *testing.T) {
	c := newTestCounter(0)

	c.Add(2 * cdtime.Second)
	require.Equal(t, DefaultBinWidth*4, c.BinWidth())

	// max bin 511 is not below 1000/4
	c.Reset()
	assert.Equal(t, DefaultBinWidth*4, c.BinWidth())
	assert.Zero(t, c.Num())
	assert.Zero(t, c.Max())

	c.Add(ms(10))
	c.Reset()
	assert.Equal(t, DefaultBinWidth*2, c.BinWidth())

	c.Add(ms(10))
	c.Reset()
	assert.Equal(t, DefaultBinWidth, c.BinWidth())

	c.Add(ms(10))
	c.Reset()
	assert.Equal(t, DefaultBinWidth, c.BinWidth())
}

func TestCounter_Percentile(t *testing.T) {
	c := newTestCounter(0)

	assert.Zero(t, c.Percentile(50))

	for i := 1; i <= 100; i++ {
		c.Add(ms(float64(i)))
	}

	tests := map[string]struct {
		percent float64
		want    float64 // seconds
	}{
		"p50": {percent: 50, want: 0.050},
		"p90": {percent: 90, want: 0.090},
		"p99": {percent: 99, want: 0.099},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, test.want, c.Percentile(test.percent).Seconds(), 2*DefaultBinWidth.Seconds())
		})
	}

	assert.Zero(t, c.Percentile(0))
	assert.Zero(t, c.Percentile(100))
}

func TestCounter_Percentile_FirstBin(t *testing.T) {
	c := newTestCounter(0)
	c.Add(1)
	assert.Equal(t, DefaultBinWidth, c.Percentile(50))
}

func TestCounter_Rate(t *testing.T) {
	c := newTestCounter(0)
	assert.True(t, math.IsNaN(c.Rate(0, 0, 10*cdtime.Second)))

	for i := 1; i <= 100; i++ {
		c.Add(ms(float64(i)))
	}
	now := 10 * cdtime.Second

	assert.Zero(t, c.Rate(0, 0, now))
	assert.InDelta(t, 10.0, c.Rate(0, cdtime.Second, now), 1e-9)
	assert.InDelta(t, 5.0, c.Rate(0, ms(50), now), 0.2)
	assert.InDelta(t, 5.0, c.Rate(ms(50), 0, now), 0.2)
	assert.Zero(t, c.Rate(ms(20), ms(20), now))
	assert.True(t, math.IsNaN(c.Rate(ms(20), ms(10), now)))
	assert.Zero(t, c.Rate(10*cdtime.Second, 0, now))
}

func TestCounter_WriteTo(t *testing.T) {
	c := newTestCounter(0)
	c.Add(ms(10))
	c.Add(ms(30))

	cfg := Config{
		Percentiles: []float64{50},
		Buckets:     []Bucket{{Lower: 0, Upper: ms(100)}},
	}
	rv := make(map[string]float64)
	c.WriteTo(rv, "latency", cfg, 2*cdtime.Second)

	assert.InDelta(t, 0.02, rv["latency_average"], 1e-6)
	assert.InDelta(t, 0.01, rv["latency_min"], 1e-6)
	assert.InDelta(t, 0.03, rv["latency_max"], 1e-6)
	assert.Equal(t, 2.0, rv["latency_count"])
	assert.Contains(t, rv, "latency_percentile_50")
	assert.InDelta(t, 1.0, rv["latency_bucket_0.000_0.100"], 1e-9)
}

func TestConfig_Apply(t *testing.T) {
	tests := map[string]struct {
		item    *conftree.Item
		handled bool
		wantErr bool
	}{
		"percentile":          {item: conftree.New("Percentile", conftree.NumberValue(99.5)), handled: true},
		"percentile too big":  {item: conftree.New("Percentile", conftree.NumberValue(100)), handled: true, wantErr: true},
		"bucket":              {item: conftree.New("Bucket", conftree.NumberValue(0), conftree.NumberValue(0.1)), handled: true},
		"open bucket":         {item: conftree.New("Bucket", conftree.NumberValue(0.1), conftree.NumberValue(0)), handled: true},
		"inverted bucket":     {item: conftree.New("Bucket", conftree.NumberValue(1), conftree.NumberValue(0.5)), handled: true, wantErr: true},
		"bucket single value": {item: conftree.New("Bucket", conftree.NumberValue(1)), handled: true, wantErr: true},
		"other key":           {item: conftree.New("Host", conftree.StringValue("x"))},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var cfg Config
			handled, err := cfg.Apply(test.item)
			assert.Equal(t, test.handled, handled)
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Buckets: []Bucket{
		{Lower: cdtime.Second, Upper: 0},
		{Lower: 0, Upper: cdtime.Second},
	}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cdtime.Time(0), cfg.Buckets[0].Lower)

	cfg.Buckets = append(cfg.Buckets, Bucket{Lower: cdtime.Second / 2, Upper: 2 * cdtime.Second})
	assert.Error(t, cfg.Validate())
}
