// SPDX-License-Identifier: GPL-3.0-or-later

package writeredis

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/redis/go-redis/v9"
)

type redisClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) *redis.IntCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	Close() error
}

type node struct {
	*logger.Logger

	name           string
	opts           *redis.Options
	timeout        time.Duration
	prefix         string
	maxSetSize     int
	maxSetDuration time.Duration
	storeRates     bool

	client redisClient
	rates  func(vl *metric.ValueList) ([]float64, error)
}

// write adds "<time>:<v1>:<v2>..." scored by time to the set of the identifier and
// remembers the identifier in the "<prefix>values" set.
func (n *node) write(ds *metric.DataSet, vl *metric.ValueList, _ *registry.UserData) error {
	member, err := n.formatValues(ds, vl)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	ident := vl.Identifier()
	key := n.prefix + ident
	score := vl.Time.Seconds()

	if err := n.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("ZADD %s: %w", key, err)
	}
	if n.maxSetSize > 0 {
		if err := n.client.ZRemRangeByRank(ctx, key, 0, -int64(n.maxSetSize)-1).Err(); err != nil {
			return fmt.Errorf("ZREMRANGEBYRANK %s: %w", key, err)
		}
	}
	if n.maxSetDuration > 0 {
		max := strconv.FormatFloat(score-n.maxSetDuration.Seconds(), 'f', 3, 64)
		if err := n.client.ZRemRangeByScore(ctx, key, "-inf", "("+max).Err(); err != nil {
			return fmt.Errorf("ZREMRANGEBYSCORE %s: %w", key, err)
		}
	}
	if err := n.client.SAdd(ctx, n.prefix+"values", ident).Err(); err != nil {
		return fmt.Errorf("SADD %svalues: %w", n.prefix, err)
	}
	return nil
}

func (n *node) formatValues(ds *metric.DataSet, vl *metric.ValueList) (string, error) {
	var rates []float64
	if n.storeRates {
		var err error
		if rates, err = n.rates(vl); err != nil {
			return "", fmt.Errorf("%s: %w", vl.Identifier(), err)
		}
	}
	if len(ds.Sources) != len(vl.Values) {
		return "", fmt.Errorf("%s: %d values for %d data sources", vl.Identifier(), len(vl.Values), len(ds.Sources))
	}

	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(vl.Time.Seconds(), 'f', 3, 64))
	for i, v := range vl.Values {
		sb.WriteByte(':')
		switch {
		case rates != nil && v.Kind != metric.DSTypeGauge:
			sb.WriteString(formatGauge(rates[i]))
		case v.Kind == metric.DSTypeGauge:
			sb.WriteString(formatGauge(v.Gauge))
		default:
			sb.WriteString(v.String())
		}
	}
	return sb.String(), nil
}

func formatGauge(f float64) string {
	if math.IsNaN(f) {
		return "U"
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}

func (n *node) close() {
	if n.client == nil {
		return
	}
	if err := n.client.Close(); err != nil {
		n.Warningf("closing redis client: %v", err)
	}
	n.client = nil
}
