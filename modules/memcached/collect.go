// SPDX-License-Identifier: GPL-3.0-or-later

package memcached

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/metric"
	"github.com/collectd/collectd-sub006/pkg/socket"
)

type instance struct {
	*logger.Logger

	name    string
	address string
	client  socket.Client
	emitter emitter

	// previous get counters for the hit ratio
	prevHits uint64
	prevGets uint64
	havePrev bool
}

func (inst *instance) read(ctx context.Context, _ *registry.UserData) error {
	stats, err := inst.queryStats()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return errors.New("unexpected memcached response")
	}

	var errs []error
	for _, vl := range inst.valueLists(stats) {
		vl.Plugin = pluginName
		vl.PluginInstance = inst.name
		if err := inst.emitter.DispatchValues(ctx, vl); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", vl.Identifier(), err))
		}
	}
	return errors.Join(errs...)
}

// https://github.com/memcached/memcached/blob/master/doc/protocol.txt
func (inst *instance) queryStats() (map[string]string, error) {
	stats := make(map[string]string)
	var respErr error

	err := inst.client.Command("stats\r\n", func(bs []byte) bool {
		line := strings.TrimSpace(string(bs))
		switch {
		case strings.HasPrefix(line, "STAT "):
			key, value := getStatKeyValue(line)
			if key != "" {
				stats[key] = value
			}
		case line == "END":
			return false
		case strings.HasPrefix(line, "ERROR"), strings.HasPrefix(line, "SERVER_ERROR"), strings.HasPrefix(line, "CLIENT_ERROR"):
			respErr = fmt.Errorf("received %s response", line)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return stats, respErr
}

func getStatKeyValue(line string) (string, string) {
	line = strings.TrimPrefix(line, "STAT ")
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return "", ""
	}
	return line[:i], line[i+1:]
}

func (inst *instance) valueLists(stats map[string]string) []*metric.ValueList {
	var vls []*metric.ValueList

	gauge := func(typ, typeInstance, key string) {
		if v, ok := parseFloat(stats, key); ok {
			vls = append(vls, newValueList(typ, typeInstance, metric.Gauge(v)))
		}
	}
	derive := func(typ, typeInstance, key string) {
		if v, ok := parseInt(stats, key); ok {
			vls = append(vls, newValueList(typ, typeInstance, metric.Derive(v)))
		}
	}

	used, okUsed := parseFloat(stats, "bytes")
	total, okTotal := parseFloat(stats, "limit_maxbytes")
	if okUsed && okTotal {
		vls = append(vls, newValueList("df", "cache", metric.Gauge(used), metric.Gauge(total-used)))
	}

	if v, ok := parseFloat(stats, "threads"); ok {
		vls = append(vls, newValueList("ps_count", "", metric.GaugeNaN(), metric.Gauge(v)))
	}
	user, okUser := parseFloat(stats, "rusage_user")
	sys, okSys := parseFloat(stats, "rusage_system")
	if okUser && okSys {
		vls = append(vls, newValueList("ps_cputime", "",
			metric.Derive(int64(user*1e6)), metric.Derive(int64(sys*1e6))))
	}

	gauge("memcached_connections", "current", "curr_connections")
	gauge("memcached_connections", "listen_disabled", "listen_disabled_num")
	derive("connections", "opened", "total_connections")
	gauge("memcached_items", "current", "curr_items")

	rx, okRx := parseInt(stats, "bytes_read")
	tx, okTx := parseInt(stats, "bytes_written")
	if okRx && okTx {
		vls = append(vls, newValueList("memcached_octets", "", metric.Derive(rx), metric.Derive(tx)))
	}

	derive("memcached_command", "get", "cmd_get")
	derive("memcached_command", "set", "cmd_set")
	derive("memcached_command", "flush", "cmd_flush")
	derive("memcached_command", "touch", "cmd_touch")

	derive("memcached_ops", "hits", "get_hits")
	derive("memcached_ops", "misses", "get_misses")
	derive("memcached_ops", "evictions", "evictions")
	derive("memcached_ops", "incr_hits", "incr_hits")
	derive("memcached_ops", "incr_misses", "incr_misses")
	derive("memcached_ops", "decr_hits", "decr_hits")
	derive("memcached_ops", "decr_misses", "decr_misses")
	derive("memcached_ops", "touch_hits", "touch_hits")
	derive("memcached_ops", "touch_misses", "touch_misses")

	if ratio, ok := inst.hitRatio(stats); ok {
		vls = append(vls, newValueList("percent", "hitratio", metric.Gauge(ratio)))
	}

	return vls
}

// hitRatio is the share of get hits among the gets since the previous read.
func (inst *instance) hitRatio(stats map[string]string) (float64, bool) {
	hits, okHits := parseUint(stats, "get_hits")
	gets, okGets := parseUint(stats, "cmd_get")
	if !okHits || !okGets {
		return 0, false
	}

	prevHits, prevGets, havePrev := inst.prevHits, inst.prevGets, inst.havePrev
	inst.prevHits, inst.prevGets, inst.havePrev = hits, gets, true

	if !havePrev || gets < prevGets || hits < prevHits {
		return 0, false
	}
	if gets == prevGets {
		return math.NaN(), true
	}
	return 100 * float64(hits-prevHits) / float64(gets-prevGets), true
}

func newValueList(typ, typeInstance string, values ...metric.Value) *metric.ValueList {
	return &metric.ValueList{Type: typ, TypeInstance: typeInstance, Values: values}
}

func parseFloat(stats map[string]string, key string) (float64, bool) {
	s, ok := stats[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parseInt(stats map[string]string, key string) (int64, bool) {
	s, ok := stats[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

func parseUint(stats map[string]string, key string) (uint64, bool) {
	s, ok := stats[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}
