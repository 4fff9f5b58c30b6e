// SPDX-License-Identifier: GPL-3.0-or-later

package throttle

import (
	"fmt"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/agent/valuecache"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

const (
	chunkCapacity = 1024

	defaultLowWaterMark  = 800_000_000
	defaultHighWaterMark = 950_000_000
	defaultChunkInterval = 30 * time.Minute
	defaultPurgeInterval = 24 * time.Hour

	statsPlugin          = "stackdriver_agent"
	metaStreamspaceSize  = "stackdriver:streamspace_size"
	metaStreamspaceThrot = "stackdriver:streamspace_size_throttling"
)

type trackerConfig struct {
	lowWaterMark  uint64
	highWaterMark uint64
	chunkInterval time.Duration
	purgeInterval time.Duration
}

// chunk is a slice of the key history: the hashes seen between created and lastAppend.
type chunk struct {
	created    time.Time
	lastAppend time.Time
	hashes     []uint32
}

type hashCount struct {
	count  uint32
	impact uint64
}

type statsPublisher interface {
	publish(memoryInUse uint64, throttling bool) error
}

// tracker estimates the memory in use by distinct fingerprints seen within the purge
// interval. One tracker is shared by all matches of a daemon instance.
type tracker struct {
	*logger.Logger

	mu          sync.Mutex
	cfg         trackerConfig
	throttling  bool
	memoryInUse uint64
	history     []*chunk
	counts      map[uint32]*hashCount

	stats statsPublisher
	now   func() time.Time
}

func newTracker(l *logger.Logger, stats statsPublisher) *tracker {
	return &tracker{
		Logger: l,
		cfg: trackerConfig{
			lowWaterMark:  defaultLowWaterMark,
			highWaterMark: defaultHighWaterMark,
			chunkInterval: defaultChunkInterval,
			purgeInterval: defaultPurgeInterval,
		},
		counts: make(map[uint32]*hashCount),
		stats:  stats,
		now:    time.Now,
	}
}

func (t *tracker) config() trackerConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

func (t *tracker) setConfig(cfg trackerConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

// observe retires old chunks, updates the throttling state and either rejects the
// fingerprint (throttling and throttleable) or records it.
func (t *tracker) observe(hash uint32, impact uint64, throttleable bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if err := t.retire(now); err != nil {
		return false, err
	}

	switch {
	case t.throttling && t.memoryInUse < t.cfg.lowWaterMark:
		t.Warningf("throttling OFF (estimated server memory %d)", t.memoryInUse)
		t.throttling = false
	case !t.throttling && t.memoryInUse > t.cfg.highWaterMark:
		t.Warningf("throttling ON (estimated server memory %d)", t.memoryInUse)
		t.throttling = true
	}

	if t.stats != nil {
		if err := t.stats.publish(t.memoryInUse, t.throttling); err != nil {
			return false, fmt.Errorf("publishing tracker stats: %w", err)
		}
	}

	if t.throttling && throttleable {
		return false, nil
	}

	t.add(hash, impact, now)
	return true, nil
}

// retire drops the chunks whose last append is older than the purge interval.
func (t *tracker) retire(now time.Time) error {
	purgeTime := now.Add(-t.cfg.purgeInterval)

	for len(t.history) > 0 && t.history[0].lastAppend.Before(purgeTime) {
		c := t.history[0]
		for _, h := range c.hashes {
			hc, ok := t.counts[h]
			if !ok || hc.count == 0 {
				return fmt.Errorf("hash %08x of the key history has no count", h)
			}
			hc.count--
			if hc.count == 0 {
				t.memoryInUse -= hc.impact
				delete(t.counts, h)
			}
		}
		t.history[0] = nil
		t.history = t.history[1:]
	}
	return nil
}

func (t *tracker) add(hash uint32, impact uint64, now time.Time) {
	hc, ok := t.counts[hash]
	if !ok {
		hc = &hashCount{impact: impact}
		t.counts[hash] = hc
		t.memoryInUse += impact
	}
	hc.count++

	var tail *chunk
	if n := len(t.history); n > 0 {
		tail = t.history[n-1]
	}
	if tail == nil || len(tail.hashes) == chunkCapacity || tail.created.Before(now.Add(-t.cfg.chunkInterval)) {
		tail = &chunk{created: now, hashes: make([]uint32, 0, chunkCapacity)}
		t.history = append(t.history, tail)
		t.Infof("%d history entries, %d distinct keys, %d bytes server memory",
			len(t.history), len(t.counts), t.memoryInUse)
	}
	tail.lastAppend = now
	tail.hashes = append(tail.hashes, hash)
}

// cacheStats publishes the tracker state as meta data of the "stackdriver_agent" cache entry.
type cacheStats struct {
	cache func() *valuecache.Cache
}

func (s cacheStats) publish(memoryInUse uint64, throttling bool) error {
	cache := s.cache()
	vl := &metric.ValueList{Plugin: statsPlugin, Time: cdtime.Now()}
	cache.Touch(vl)
	if err := cache.MetaAddUnsignedInt(vl, metaStreamspaceSize, memoryInUse); err != nil {
		return err
	}
	return cache.MetaAddBoolean(vl, metaStreamspaceThrot, throttling)
}
