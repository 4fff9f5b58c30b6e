// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the registered read callbacks on their intervals.
//
// A single dispatcher goroutine owns the deadline queue. Due callbacks are handed to a
// fixed pool of workers; a callback never runs twice at the same time. Failing callbacks
// are suspended with an exponential back-off.
package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/agent/global"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"

	"github.com/sourcegraph/conc"
)

const DefaultStopGrace = 10 * time.Second

type Config struct {
	Registry        *registry.Registry
	Workers         int
	Interval        time.Duration
	MaxReadInterval time.Duration
	StopGrace       time.Duration
}

// CallbackStats is a snapshot of one read callback's run history.
type CallbackStats struct {
	Name                string
	Group               string
	Interval            time.Duration
	EffectiveInterval   time.Duration
	Runs                uint64
	Failures            uint64
	ConsecutiveFailures int
	Skipped             uint64
	LastDuration        time.Duration
	LastRun             time.Time
}

type work struct {
	job      *job
	entry    *registry.Entry
	interval time.Duration
}

type result struct {
	job      *job
	err      error
	skipped  bool
	started  time.Time
	duration time.Duration
}

type Scheduler struct {
	*logger.Logger

	reg       *registry.Registry
	workers   int
	interval  time.Duration
	maxRead   time.Duration
	stopGrace time.Duration
	now       func() time.Time

	workCh   chan work
	resultCh chan result

	mu      sync.Mutex
	jobs    map[*registry.Entry]*job
	running map[*job]time.Time

	// dispatcher-only
	queue queue
	ready []*job

	cancel context.CancelFunc
	wg     conc.WaitGroup
	done   chan struct{}
}

func New(cfg Config) *Scheduler {
	opts := global.Get()
	s := &Scheduler{
		Logger:    logger.New().With(slog.String("component", "scheduler")),
		reg:       cfg.Registry,
		workers:   cfg.Workers,
		interval:  cfg.Interval,
		maxRead:   cfg.MaxReadInterval,
		stopGrace: cfg.StopGrace,
		now:       time.Now,
		jobs:      make(map[*registry.Entry]*job),
		running:   make(map[*job]time.Time),
	}
	if s.workers <= 0 {
		s.workers = opts.ReadThreads
	}
	if s.workers <= 0 {
		s.workers = global.DefaultReadThreads
	}
	if s.interval <= 0 {
		s.interval = opts.Interval
	}
	if s.maxRead <= 0 {
		s.maxRead = opts.MaxReadInterval
	}
	if s.stopGrace <= 0 {
		s.stopGrace = DefaultStopGrace
	}
	return s
}

// Start launches the dispatcher and the worker pool. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.workCh = make(chan work)
	s.resultCh = make(chan result, s.workers)
	s.done = make(chan struct{})

	s.Infof("starting %d read threads", s.workers)

	for i := 0; i < s.workers; i++ {
		s.wg.Go(func() { s.worker(ctx) })
	}
	s.wg.Go(func() { s.loop(ctx) })

	go func() { s.wg.Wait(); close(s.done) }()
}

// Stop cancels the scheduler and waits for the workers to finish their current callback.
// Callbacks that do not return within the stop grace period are logged by name.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	grace := time.NewTimer(s.stopGrace)
	defer grace.Stop()

	select {
	case <-s.done:
		return
	case <-grace.C:
	}

	if names := s.runningNames(); len(names) > 0 {
		s.Warningf("%d read threads are still running callbacks after %s: %s",
			len(names), s.stopGrace, strings.Join(names, ", "))
	}
	<-s.done
}

// Stats returns a snapshot of every scheduled read callback, sorted by name.
func (s *Scheduler) Stats() []CallbackStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]CallbackStats, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := j.stats
		st.Skipped = j.skips.Total()
		stats = append(stats, st)
	}
	slices.SortFunc(stats, func(a, b CallbackStats) int { return strings.Compare(a.Name, b.Name) })
	return stats
}

func (s *Scheduler) runningNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for j := range s.running {
		names = append(names, j.name())
	}
	slices.Sort(names)
	return names
}

func (s *Scheduler) loop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	s.sync()

	for {
		var workCh chan work
		var next work
		if len(s.ready) > 0 {
			workCh = s.workCh
			j := s.ready[0]
			next = work{job: j, entry: j.entry, interval: j.interval}
		}

		if j := s.queue.peek(); j != nil {
			timer.Reset(max(j.deadline.Sub(s.now()), 0))
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.reg.Changed():
			s.sync()
		case <-timer.C:
			s.promote()
		case workCh <- next:
			s.ready = s.ready[1:]
		case res := <-s.resultCh:
			s.complete(res)
		}
	}
}

// sync picks up registered and unregistered read callbacks.
func (s *Scheduler) sync() {
	entries := s.reg.List(registry.KindRead)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[*registry.Entry]bool, len(entries))
	for _, e := range entries {
		seen[e] = true
		if _, ok := s.jobs[e]; ok {
			continue
		}
		interval := e.Interval
		if interval <= 0 {
			interval = s.interval
		}
		j := &job{
			entry:     e,
			interval:  interval,
			deadline:  now,
			effective: interval,
			index:     -1,
			stats: CallbackStats{
				Name:              e.Name,
				Group:             e.Group,
				Interval:          interval,
				EffectiveInterval: interval,
			},
		}
		s.jobs[e] = j
		s.queue.push(j)
		s.Debugf("scheduled read callback '%s' every %s", e.Name, interval)
	}

	for e, j := range s.jobs {
		if seen[e] {
			continue
		}
		j.removed = true
		delete(s.jobs, e)
		s.queue.remove(j)
		s.ready = slices.DeleteFunc(s.ready, func(x *job) bool { return x == j })
		s.Debugf("unscheduled read callback '%s'", e.Name)
	}
}

// promote moves every due job to the ready list.
func (s *Scheduler) promote() {
	now := s.now()
	for {
		j := s.queue.peek()
		if j == nil || j.deadline.After(now) {
			return
		}
		s.queue.pop()
		j.running = true
		s.ready = append(s.ready, j)
	}
}

func (s *Scheduler) complete(res result) {
	j := res.job
	j.running = false
	if j.removed || res.skipped {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j.stats.Runs++
	j.stats.LastRun = res.started
	j.stats.LastDuration = res.duration

	if res.err != nil {
		j.failures++
		j.stats.Failures++
		j.effective = backoff(j.interval, j.failures, s.maxRead)
		if j.effective > j.interval {
			s.Errorf("read-function of plugin '%s' failed, will suspend it for %s: %v", j.name(), j.effective, res.err)
		} else {
			s.Errorf("read-function of plugin '%s' failed: %v", j.name(), res.err)
		}
	} else {
		if j.failures >= backoffThreshold {
			s.Infof("read-function of plugin '%s' succeeded again after %d failures", j.name(), j.failures)
		}
		j.failures = 0
		j.effective = j.interval
	}
	j.stats.ConsecutiveFailures = j.failures
	j.stats.EffectiveInterval = j.effective

	next, missed := nextDeadline(j.deadline, s.now(), j.effective)
	if missed > 0 {
		snap := j.skips.MarkSkipped(missed)
		s.Infof("skipping data collection: previous run is still in progress for %s (skipped %d times in a row, interval %s)",
			j.name(), snap.Count, j.effective)
	}
	j.deadline = next
	s.queue.push(j)
}
