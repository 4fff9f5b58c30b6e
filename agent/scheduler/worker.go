// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collectd/collectd-sub006/agent/dispatch"
	"github.com/collectd/collectd-sub006/agent/registry"

	"github.com/sourcegraph/conc/panics"
)

var errNotReadFunc = errors.New("callback is not a read function")

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-s.workCh:
			res := s.runJob(ctx, w)
			select {
			case s.resultCh <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, w work) result {
	res := result{job: w.job}
	if !w.entry.Begin() {
		res.skipped = true
		return res
	}
	defer w.entry.End()

	res.started = s.now()

	s.mu.Lock()
	s.running[w.job] = res.started
	s.mu.Unlock()

	if resume := w.job.skips.MarkRunStart(res.started); resume.Skipped > 0 {
		s.Infof("data collection resumed after %s (skipped %d times)", res.started.Sub(resume.RunStarted), resume.Skipped)
	}

	res.err = s.call(ctx, w.entry, w.interval)

	end := s.now()
	res.duration = end.Sub(res.started)
	w.job.skips.MarkRunStop(end)

	s.mu.Lock()
	delete(s.running, w.job)
	s.mu.Unlock()

	return res
}

// call runs a read callback, a panic is reported as an error.
func (s *Scheduler) call(ctx context.Context, e *registry.Entry, interval time.Duration) (err error) {
	fn, ok := e.Func.(registry.ReadFunc)
	if !ok {
		return fmt.Errorf("'%s': %w", e.Name, errNotReadFunc)
	}

	rctx := dispatch.WithReadContext(ctx, e.Name, interval)

	var pc panics.Catcher
	pc.Try(func() { err = fn(rctx, e.UserData) })
	if r := pc.Recovered(); r != nil {
		s.Errorf("read-function of plugin '%s' panicked: %v\n%s", e.Name, r.Value, r.Stack)
		return r.AsError()
	}
	return err
}

// ReadAll runs every registered read callback once, sequentially. It returns the joined
// errors of the callbacks that failed.
func (s *Scheduler) ReadAll(ctx context.Context) error {
	var errs []error
	for _, e := range s.reg.List(registry.KindRead) {
		if !e.Begin() {
			continue
		}
		interval := e.Interval
		if interval <= 0 {
			interval = s.interval
		}
		if err := s.call(ctx, e, interval); err != nil {
			s.Errorf("read-function of plugin '%s' failed: %v", e.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
		e.End()
	}
	return errors.Join(errs...)
}
