// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
)

// ParseValue parses text according to kind. Surrounding whitespace and a trailing
// newline are ignored; "U" is accepted as an unknown gauge. Integer kinds accept a
// fractional or exponent notation as long as it is integral after parsing.
func ParseValue(text string, kind DSType) (Value, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Value{}, fmt.Errorf("%w: empty value", ErrInvalid)
	}

	switch kind {
	case DSTypeGauge:
		if s == "U" {
			return GaugeNaN(), nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: '%s' is not a gauge", ErrInvalid, s)
		}
		return Gauge(v), nil
	case DSTypeCounter, DSTypeAbsolute:
		v, err := parseUint(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: '%s' is not an unsigned integer", ErrInvalid, s)
		}
		if kind == DSTypeCounter {
			return Counter(v), nil
		}
		return Absolute(v), nil
	case DSTypeDerive:
		v, err := parseInt(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: '%s' is not an integer", ErrInvalid, s)
		}
		return Derive(v), nil
	}
	return Value{}, fmt.Errorf("%w: unknown data source type %d", ErrInvalid, kind)
}

func parseUint(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
		return 0, ErrInvalid
	}
	return uint64(f), nil
}

func parseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, ErrInvalid
	}
	return int64(f), nil
}

// ParseValues parses the "time:v1:v2:..." notation into vl. The time may be "N"
// for now. The number of values must match ds.
func ParseValues(text string, vl *ValueList, ds *DataSet) error {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != len(ds.Sources)+1 {
		return fmt.Errorf("%w: '%s' has %d values, type '%s' expects %d",
			ErrValueCount, text, len(parts)-1, ds.Type, len(ds.Sources))
	}

	if parts[0] == "N" {
		vl.Time = 0
	} else {
		sec, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || sec < 0 {
			return fmt.Errorf("%w: invalid time '%s'", ErrInvalid, parts[0])
		}
		vl.Time = cdtime.FromSeconds(sec)
	}

	values := make([]Value, 0, len(ds.Sources))
	for i, src := range ds.Sources {
		s := parts[i+1]
		if s == "U" && src.Type != DSTypeGauge {
			return fmt.Errorf("%w: 'U' is only valid for gauges", ErrInvalid)
		}
		v, err := ParseValue(s, src.Type)
		if err != nil {
			return err
		}
		values = append(values, v)
	}
	vl.Values = values
	return nil
}
