// SPDX-License-Identifier: GPL-3.0-or-later

// Package cdtime implements fixed-point timestamps and durations.
//
// A Time is an unsigned 64-bit count of 2^-30 second units (roughly 0.93ns), which
// gives sub-microsecond resolution with a range of ~544 years since the Unix epoch.
// The same type is used for points in time and for intervals.
package cdtime

import (
	"math"
	"strconv"
	"time"
)

type Time uint64

const fracBits = 30

// Second is one second in Time units.
const Second Time = 1 << fracBits

// Now returns the current wall clock time.
func Now() Time {
	return New(time.Now())
}

// New converts wall time to Time. Times before the epoch map to 0.
func New(t time.Time) Time {
	if t.IsZero() {
		return 0
	}
	return FromNanoseconds(t.UnixNano())
}

// FromNanoseconds converts a nanosecond count. Negative values map to 0.
func FromNanoseconds(ns int64) Time {
	if ns <= 0 {
		return 0
	}
	sec := uint64(ns) / 1e9
	rem := uint64(ns) % 1e9
	// rem < 2^30, so the shift cannot overflow.
	frac := (rem<<fracBits + 5e8) / 1e9
	return Time(sec<<fracBits + frac)
}

// FromDuration converts a duration. Negative durations map to 0.
func FromDuration(d time.Duration) Time {
	return FromNanoseconds(int64(d))
}

// FromSeconds converts a floating point number of seconds. Negative, NaN and
// infinite values map to 0.
func FromSeconds(s float64) Time {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	if math.IsInf(s, 1) || s >= float64(math.MaxUint64>>fracBits) {
		return Time(math.MaxUint64)
	}
	return Time(math.Round(s * float64(Second)))
}

// Nanoseconds returns t as a nanosecond count.
func (t Time) Nanoseconds() int64 {
	sec := uint64(t) >> fracBits
	frac := uint64(t) & (uint64(Second) - 1)
	ns := sec*1e9 + (frac*1e9+uint64(Second)/2)>>fracBits
	if ns > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(ns)
}

func (t Time) Seconds() float64 {
	return float64(t) / float64(Second)
}

func (t Time) Duration() time.Duration {
	return time.Duration(t.Nanoseconds())
}

// Time returns t as wall time in the local location.
func (t Time) Time() time.Time {
	return time.Unix(0, t.Nanoseconds())
}

func (t Time) IsZero() bool { return t == 0 }

// String formats t as seconds with millisecond precision.
func (t Time) String() string {
	return strconv.FormatFloat(t.Seconds(), 'f', 3, 64)
}
