// SPDX-License-Identifier: GPL-3.0-or-later

// Package throttle provides the "throttle_metadata_keys" match. It estimates the memory
// a remote store spends on distinct series over a sliding window and stops matching
// throttleable value lists while the estimate is above a high water mark.
//
//	<Chain "PreCache">
//	  <Rule>
//	    <Match "throttle_metadata_keys">
//	      OKToThrottle true
//	      TrackedMetadata "label:instance"
//	      HighWaterMark 950000000
//	      LowWaterMark 800000000
//	    </Match>
//	    Target "write"
//	  </Rule>
//	  Target "stop"
//	</Chain>
package throttle

import (
	"errors"
	"strings"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/pkg/conftree"
)

const (
	pluginName = "match_throttle_metadata_keys"
	matchName  = "throttle_metadata_keys"
)

func init() {
	module.Register(pluginName, module.Creator{
		Register: func(h *module.Host) error {
			t := newTracker(h.NewLogger(), cacheStats{cache: h.Cache})
			return h.RegisterMatch(matchName, func(ci *conftree.Item) (filterchain.Match, error) {
				return newMatch(t, ci)
			})
		},
		Description: "drops series while the estimated series memory is too high",
	})
}

// newMatch configures a match. Water marks and intervals are tracker wide; the last
// configured match wins.
func newMatch(t *tracker, ci *conftree.Item) (*match, error) {
	m := &match{tracker: t}
	cfg := t.config()

	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "oktothrottle":
			m.okToThrottle, err = conftree.GetBoolean(child)
		case "trackedmetadata":
			var key string
			if key, err = conftree.GetString(child); err == nil {
				m.trackedKeys = append(m.trackedKeys, key)
			}
		case "lowwatermark":
			cfg.lowWaterMark, err = getBytes(child)
		case "highwatermark":
			cfg.highWaterMark, err = getBytes(child)
		case "chunkinterval":
			cfg.chunkInterval, err = conftree.GetDuration(child)
		case "purgeinterval":
			cfg.purgeInterval, err = conftree.GetDuration(child)
		default:
			err = conftree.Errorf(child, "unknown %s option", matchName)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if cfg.lowWaterMark > cfg.highWaterMark {
		return nil, conftree.Errorf(ci, "LowWaterMark %d is above HighWaterMark %d", cfg.lowWaterMark, cfg.highWaterMark)
	}

	t.setConfig(cfg)
	return m, nil
}

func getBytes(ci *conftree.Item) (uint64, error) {
	v, err := conftree.GetInt(ci)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, conftree.Errorf(ci, "expected a non-negative number of bytes")
	}
	return uint64(v), nil
}
