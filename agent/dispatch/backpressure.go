// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"math/rand/v2"
	"sync/atomic"
)

// limiter drops values while too many are being written. Below low nothing is dropped,
// at or above high everything is, in between the drop probability grows linearly.
type limiter struct {
	low, high int64

	inflight atomic.Int64
	dropped  atomic.Uint64

	randN func(n int64) int64
}

func newLimiter(low, high int64) *limiter {
	if low > high {
		low = high
	}
	return &limiter{low: low, high: high, randN: rand.Int64N}
}

func (l *limiter) shouldDrop() bool {
	if l.high == 0 {
		return false
	}
	n := l.inflight.Load()
	if n < l.low {
		return false
	}
	if n >= l.high {
		l.dropped.Add(1)
		return true
	}

	pos := 1 + n - l.low
	size := 1 + l.high - l.low
	if 1+l.randN(size) <= pos {
		l.dropped.Add(1)
		return true
	}
	return false
}

func (l *limiter) acquire() { l.inflight.Add(1) }
func (l *limiter) release() { l.inflight.Add(-1) }
