// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"container/heap"
	"time"

	"github.com/collectd/collectd-sub006/agent/internal/tickstate"
	"github.com/collectd/collectd-sub006/agent/registry"
)

// job is the dispatcher-owned state of one read callback.
type job struct {
	entry    *registry.Entry
	interval time.Duration

	deadline  time.Time
	effective time.Duration
	failures  int
	running   bool
	removed   bool
	index     int // position in the queue, -1 when not queued

	skips tickstate.SkipTracker
	stats CallbackStats
}

func (j *job) name() string { return j.entry.Name }

// queue is a min-heap of jobs ordered by deadline, then by registration sequence.
type queue []*job

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].entry.Seq() < q[j].entry.Seq()
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	j := x.(*job)
	j.index = len(*q)
	*q = append(*q, j)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*q = old[:n-1]
	return j
}

func (q queue) peek() *job {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *queue) push(j *job) { heap.Push(q, j) }

func (q *queue) pop() *job { return heap.Pop(q).(*job) }

func (q *queue) remove(j *job) {
	if j.index >= 0 && j.index < len(*q) && (*q)[j.index] == j {
		heap.Remove(q, j.index)
	}
}

// backoffThreshold is the number of consecutive failures after which a callback is suspended.
const backoffThreshold = 3

// backoff returns the effective interval after the given number of consecutive failures.
// From the third failure on the interval doubles on every further failure, capped at
// min(10*interval, max).
func backoff(interval time.Duration, failures int, max time.Duration) time.Duration {
	if failures < backoffThreshold {
		return interval
	}

	limit := 10 * interval
	if max > 0 && max < limit {
		limit = max
	}
	if limit < interval {
		return interval
	}

	eff := interval
	for i := 0; i < failures-backoffThreshold+1; i++ {
		eff *= 2
		if eff >= limit {
			return limit
		}
	}
	return eff
}

// nextDeadline advances prev by one effective interval. Ticks that already passed are
// skipped, their count is returned.
func nextDeadline(prev, now time.Time, eff time.Duration) (time.Time, int) {
	next := prev.Add(eff)
	if !next.Before(now) {
		return next, 0
	}
	if eff <= 0 {
		return now, 0
	}
	missed := int(now.Sub(next)/eff) + 1
	return now, missed
}
