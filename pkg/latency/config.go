// SPDX-License-Identifier: GPL-3.0-or-later

package latency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/conftree"
)

// Bucket is a (Lower, Upper] latency range. Upper == 0 means unbounded.
type Bucket struct {
	Lower cdtime.Time
	Upper cdtime.Time
}

type Config struct {
	Percentiles []float64
	Buckets     []Bucket
}

var errOverlap = errors.New("buckets overlap")

// Apply handles the "Percentile" and "Bucket" options, it reports false for other keys.
//
//	Percentile 99.5
//	Bucket 0 0.1
//	Bucket 0.1 0
func (c *Config) Apply(ci *conftree.Item) (bool, error) {
	switch strings.ToLower(ci.Key) {
	case "percentile":
		p, err := conftree.GetDouble(ci)
		if err != nil {
			return true, err
		}
		if !(p > 0 && p < 100) {
			return true, conftree.Errorf(ci, "percentile %g is not in (0, 100)", p)
		}
		c.Percentiles = append(c.Percentiles, p)
		return true, nil
	case "bucket":
		if len(ci.Values) != 2 || ci.Values[0].Type != conftree.Number || ci.Values[1].Type != conftree.Number {
			return true, conftree.Errorf(ci, "expected two numeric arguments")
		}
		lower, upper := ci.Values[0].Number, ci.Values[1].Number
		if lower < 0 || upper < 0 || (upper != 0 && upper <= lower) {
			return true, conftree.Errorf(ci, "invalid bucket [%g, %g)", lower, upper)
		}
		c.Buckets = append(c.Buckets, Bucket{Lower: cdtime.FromSeconds(lower), Upper: cdtime.FromSeconds(upper)})
		return true, nil
	}
	return false, nil
}

// Validate sorts buckets and checks they don't overlap.
func (c *Config) Validate() error {
	sort.Slice(c.Buckets, func(i, j int) bool { return c.Buckets[i].Lower < c.Buckets[j].Lower })
	for i := 1; i < len(c.Buckets); i++ {
		prev := c.Buckets[i-1]
		if prev.Upper == 0 || prev.Upper > c.Buckets[i].Lower {
			return fmt.Errorf("%w: (%s, %s] and (%s, %s]", errOverlap,
				prev.Lower, prev.Upper, c.Buckets[i].Lower, c.Buckets[i].Upper)
		}
	}
	return nil
}

func (c Config) Clone() Config {
	return Config{
		Percentiles: append([]float64(nil), c.Percentiles...),
		Buckets:     append([]Bucket(nil), c.Buckets...),
	}
}
