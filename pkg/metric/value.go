// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DSType is the kind of a data source.
type DSType int

const (
	DSTypeGauge DSType = iota
	DSTypeCounter
	DSTypeDerive
	DSTypeAbsolute
)

func (t DSType) String() string {
	switch t {
	case DSTypeGauge:
		return "GAUGE"
	case DSTypeCounter:
		return "COUNTER"
	case DSTypeDerive:
		return "DERIVE"
	case DSTypeAbsolute:
		return "ABSOLUTE"
	default:
		return "UNKNOWN"
	}
}

// ParseDSType parses a data source kind name, case-insensitive.
func ParseDSType(s string) (DSType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GAUGE":
		return DSTypeGauge, nil
	case "COUNTER":
		return DSTypeCounter, nil
	case "DERIVE":
		return DSTypeDerive, nil
	case "ABSOLUTE":
		return DSTypeAbsolute, nil
	}
	return 0, fmt.Errorf("%w: unknown data source type '%s'", ErrInvalid, s)
}

// Value is a tagged union over the data source kinds. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind     DSType
	Gauge    float64
	Counter  uint64
	Derive   int64
	Absolute uint64
}

func Gauge(v float64) Value   { return Value{Kind: DSTypeGauge, Gauge: v} }
func Counter(v uint64) Value  { return Value{Kind: DSTypeCounter, Counter: v} }
func Derive(v int64) Value    { return Value{Kind: DSTypeDerive, Derive: v} }
func Absolute(v uint64) Value { return Value{Kind: DSTypeAbsolute, Absolute: v} }

func GaugeNaN() Value { return Gauge(math.NaN()) }

func (v Value) IsNaN() bool { return v.Kind == DSTypeGauge && math.IsNaN(v.Gauge) }

// Float returns the value converted to float64.
func (v Value) Float() float64 {
	switch v.Kind {
	case DSTypeCounter:
		return float64(v.Counter)
	case DSTypeDerive:
		return float64(v.Derive)
	case DSTypeAbsolute:
		return float64(v.Absolute)
	default:
		return v.Gauge
	}
}

func (v Value) String() string {
	switch v.Kind {
	case DSTypeCounter:
		return strconv.FormatUint(v.Counter, 10)
	case DSTypeDerive:
		return strconv.FormatInt(v.Derive, 10)
	case DSTypeAbsolute:
		return strconv.FormatUint(v.Absolute, 10)
	default:
		if math.IsNaN(v.Gauge) {
			return "nan"
		}
		return strconv.FormatFloat(v.Gauge, 'g', -1, 64)
	}
}

// CounterDiff returns new-old for a counter that wraps modulo 2^64.
func CounterDiff(old, new uint64) uint64 {
	return new - old
}
