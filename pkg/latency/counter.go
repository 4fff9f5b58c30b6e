// SPDX-License-Identifier: GPL-3.0-or-later

// Package latency implements a latency histogram with a fixed number of equally wide
// bins. The bin width grows in powers of two when a larger latency is added and
// shrinks again on Reset once the observed latencies fit into a quarter of the range.
package latency

import (
	"fmt"
	"math"
	"sync"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
)

const (
	NumBins = 1000

	// DefaultBinWidth is 2^20 cdtime units, 1/1024 s.
	DefaultBinWidth cdtime.Time = 1 << 20

	reduceThreshold = 4
)

type Counter struct {
	mu sync.Mutex

	now       func() cdtime.Time
	startTime cdtime.Time

	sum cdtime.Time
	num uint64
	min cdtime.Time
	max cdtime.Time

	binWidth  cdtime.Time
	histogram [NumBins]uint64
}

func NewCounter() *Counter {
	c := &Counter{now: cdtime.Now, binWidth: DefaultBinWidth}
	c.startTime = c.now()
	return c
}

// Add records one latency. Zero and latencies above math.MaxInt64 are ignored.
func (c *Counter) Add(latency cdtime.Time) {
	if latency == 0 || uint64(latency) > math.MaxInt64 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sum += latency
	c.num++

	if c.min == 0 && c.max == 0 {
		c.min, c.max = latency, latency
	}
	c.min = min(c.min, latency)
	c.max = max(c.max, latency)

	// a latency of exactly one bin width belongs to bin 0
	bin := (latency - 1) / c.binWidth
	if bin >= NumBins {
		c.changeBinWidth(latency)
		if bin = (latency - 1) / c.binWidth; bin >= NumBins {
			return
		}
	}
	c.histogram[bin]++
}

// changeBinWidth grows the bin width to the next power of two covering latency and
// folds the existing bins into the new ones.
func (c *Counter) changeBinWidth(latency cdtime.Time) {
	required := float64(latency+1) / NumBins
	newWidth := cdtime.Time(math.Pow(2, math.Ceil(math.Log2(required))) + .5)
	oldWidth := c.binWidth
	c.binWidth = newWidth

	if c.num == 0 {
		return
	}
	ratio := float64(oldWidth) / float64(newWidth)
	for i := 0; i < NumBins; i++ {
		nb := int(float64(i) * ratio)
		if nb == i {
			continue
		}
		c.histogram[nb] += c.histogram[i]
		c.histogram[i] = 0
	}
}

// Reset clears the counter and starts a new measurement period. The bin width is kept,
// or halved when the largest latency used less than a quarter of the bins.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	width := c.binWidth
	if c.num > 0 && c.binWidth >= DefaultBinWidth*2 {
		if maxBin := (c.max - 1) / c.binWidth; maxBin < NumBins/reduceThreshold {
			width /= 2
		}
	}

	c.sum, c.num, c.min, c.max = 0, 0, 0, 0
	c.histogram = [NumBins]uint64{}
	c.binWidth = width
	c.startTime = c.now()
}

func (c *Counter) Min() cdtime.Time      { c.mu.Lock(); defer c.mu.Unlock(); return c.min }
func (c *Counter) Max() cdtime.Time      { c.mu.Lock(); defer c.mu.Unlock(); return c.max }
func (c *Counter) Sum() cdtime.Time      { c.mu.Lock(); defer c.mu.Unlock(); return c.sum }
func (c *Counter) Num() uint64           { c.mu.Lock(); defer c.mu.Unlock(); return c.num }
func (c *Counter) BinWidth() cdtime.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.binWidth }
func (c *Counter) StartTime() cdtime.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

func (c *Counter) Average() cdtime.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.num == 0 {
		return 0
	}
	return cdtime.FromSeconds(c.sum.Seconds() / float64(c.num))
}

// Percentile estimates the latency below which percent of the observations fall,
// interpolating linearly inside the bin. percent must be in (0, 100).
func (c *Counter) Percentile(percent float64) cdtime.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.num == 0 || !(percent > 0 && percent < 100) {
		return 0
	}

	var (
		lower, upper float64
		sum          uint64
		i            int
	)
	for i = 0; i < NumBins; i++ {
		lower = upper
		sum += c.histogram[i]
		if sum == 0 {
			upper = 0
		} else {
			upper = 100 * float64(sum) / float64(c.num)
		}
		if upper >= percent {
			break
		}
	}
	if i >= NumBins {
		return 0
	}
	if i == 0 {
		return c.binWidth
	}

	latencyLower := cdtime.Time(i) * c.binWidth
	p := (percent - lower) / (upper - lower)
	return latencyLower + cdtime.FromSeconds(p*c.binWidth.Seconds())
}

// Rate returns the number of observations per second in the (lower, upper] range since
// the last reset. upper == 0 means unbounded. The result is NaN without observations
// or with upper < lower.
func (c *Counter) Rate(lower, upper, now cdtime.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.num == 0 {
		return math.NaN()
	}
	if upper != 0 && upper < lower {
		return math.NaN()
	}
	if lower == upper {
		return 0
	}

	var lowerBin cdtime.Time
	if lower != 0 {
		// lower is exclusive
		lowerBin = lower / c.binWidth
	}
	if lowerBin >= NumBins {
		return 0
	}

	upperBin := cdtime.Time(NumBins - 1)
	if upper != 0 {
		upperBin = (upper - 1) / c.binWidth
	}
	if upperBin >= NumBins {
		upperBin = NumBins - 1
		upper = 0
	}

	var sum float64
	for i := lowerBin; i <= upperBin; i++ {
		sum += float64(c.histogram[i])
	}

	if lower != 0 {
		boundary := lowerBin * c.binWidth
		ratio := float64(lower-boundary) / float64(c.binWidth)
		sum -= ratio * float64(c.histogram[lowerBin])
	}
	if upper != 0 {
		boundary := (upperBin + 1) * c.binWidth
		ratio := float64(boundary-upper) / float64(c.binWidth)
		sum -= ratio * float64(c.histogram[upperBin])
	}

	elapsed := (now - c.startTime).Seconds()
	if elapsed <= 0 {
		return math.NaN()
	}
	return sum / elapsed
}

// WriteTo writes the configured aggregates into rv:
//
//	${key}_average, ${key}_min, ${key}_max, ${key}_sum  seconds
//	${key}_count                                        observations
//	${key}_percentile_${p}                              seconds
//	${key}_bucket_${lower}_${upper}                     observations per second
func (c *Counter) WriteTo(rv map[string]float64, key string, cfg Config, now cdtime.Time) {
	rv[key+"_average"] = c.Average().Seconds()
	rv[key+"_min"] = c.Min().Seconds()
	rv[key+"_max"] = c.Max().Seconds()
	rv[key+"_sum"] = c.Sum().Seconds()
	rv[key+"_count"] = float64(c.Num())

	for _, p := range cfg.Percentiles {
		rv[fmt.Sprintf("%s_percentile_%g", key, p)] = c.Percentile(p).Seconds()
	}
	for _, b := range cfg.Buckets {
		rv[fmt.Sprintf("%s_bucket_%s_%s", key, b.Lower, b.Upper)] = c.Rate(b.Lower, b.Upper, now)
	}
}
