// SPDX-License-Identifier: GPL-3.0-or-later

package conftree

import (
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
)

func single(it *Item, typ ValueType) (Value, error) {
	if it == nil {
		return Value{}, &Error{Msg: "nil item"}
	}
	if len(it.Values) != 1 {
		return Value{}, Errorf(it, "expected exactly one %s argument, got %d", typ, len(it.Values))
	}
	if v := it.Values[0]; v.Type != typ {
		return Value{}, Errorf(it, "expected a %s argument, got a %s", typ, v.Type)
	}
	return it.Values[0], nil
}

func GetString(it *Item) (string, error) {
	v, err := single(it, String)
	if err != nil {
		return "", err
	}
	return v.String, nil
}

// GetStringBuffer is GetString with a length bound, longer strings are an error.
func GetStringBuffer(it *Item, max int) (string, error) {
	s, err := GetString(it)
	if err != nil {
		return "", err
	}
	if len(s) > max {
		return "", Errorf(it, "string is longer than %d bytes", max)
	}
	return s, nil
}

// GetStrings returns all arguments, which must be strings.
func GetStrings(it *Item) ([]string, error) {
	if len(it.Values) == 0 {
		return nil, Errorf(it, "expected at least one string argument")
	}
	out := make([]string, 0, len(it.Values))
	for _, v := range it.Values {
		if v.Type != String {
			return nil, Errorf(it, "all arguments must be strings")
		}
		out = append(out, v.String)
	}
	return out, nil
}

func GetInt(it *Item) (int, error) {
	v, err := single(it, Number)
	if err != nil {
		return 0, err
	}
	if v.Number != math.Trunc(v.Number) || v.Number > math.MaxInt32 || v.Number < math.MinInt32 {
		return 0, Errorf(it, "%v is not an integer", v.Number)
	}
	return int(v.Number), nil
}

func GetDouble(it *Item) (float64, error) {
	v, err := single(it, Number)
	if err != nil {
		return 0, err
	}
	return v.Number, nil
}

// GetBoolean also accepts the strings "true" and "false" (case-insensitive).
func GetBoolean(it *Item) (bool, error) {
	if it == nil || len(it.Values) != 1 {
		_, err := single(it, Boolean)
		return false, err
	}
	v := it.Values[0]
	switch v.Type {
	case Boolean:
		return v.Boolean, nil
	case String:
		switch strings.ToLower(v.String) {
		case "true", "yes", "on":
			return true, nil
		case "false", "no", "off":
			return false, nil
		}
		return false, Errorf(it, "%q is not a boolean", v.String)
	default:
		return false, Errorf(it, "expected a boolean argument, got a %s", v.Type)
	}
}

// GetPort accepts a number in [1, 65535] or a service name.
func GetPort(it *Item) (int, error) {
	if it == nil || len(it.Values) != 1 {
		return 0, Errorf(it, "expected exactly one argument")
	}
	v := it.Values[0]
	switch v.Type {
	case Number:
		p := int(v.Number)
		if float64(p) != v.Number || p < 1 || p > 65535 {
			return 0, Errorf(it, "invalid port number %v", v.Number)
		}
		return p, nil
	case String:
		p, err := net.LookupPort("tcp", v.String)
		if err != nil || p < 1 || p > 65535 {
			return 0, Errorf(it, "unknown service %q", v.String)
		}
		return p, nil
	default:
		return 0, Errorf(it, "expected a port number or service name")
	}
}

// GetService returns a service name or a numeric port rendered as a string.
func GetService(it *Item) (string, error) {
	if it == nil || len(it.Values) != 1 {
		return "", Errorf(it, "expected exactly one argument")
	}
	v := it.Values[0]
	switch v.Type {
	case String:
		return v.String, nil
	case Number:
		p := int(v.Number)
		if float64(p) != v.Number || p < 1 || p > 65535 {
			return "", Errorf(it, "invalid port number %v", v.Number)
		}
		return strconv.Itoa(p), nil
	default:
		return "", Errorf(it, "expected a port number or service name")
	}
}

// GetCdtime reads a non-negative number of seconds.
func GetCdtime(it *Item) (cdtime.Time, error) {
	v, err := single(it, Number)
	if err != nil {
		return 0, err
	}
	if v.Number < 0 || math.IsNaN(v.Number) {
		return 0, Errorf(it, "must be a non-negative number of seconds")
	}
	return cdtime.FromSeconds(v.Number), nil
}

// GetDuration reads a non-negative number of seconds.
func GetDuration(it *Item) (time.Duration, error) {
	t, err := GetCdtime(it)
	if err != nil {
		return 0, err
	}
	return t.Duration(), nil
}

// GetFlag sets or clears bit in mask depending on the boolean argument.
func GetFlag(it *Item, mask *uint, bit uint) error {
	b, err := GetBoolean(it)
	if err != nil {
		return err
	}
	if b {
		*mask |= bit
	} else {
		*mask &^= bit
	}
	return nil
}
