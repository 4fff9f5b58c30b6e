// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/pkg/metric"
	"github.com/collectd/collectd-sub006/pkg/strmutil"
)

// MaxMessageLen bounds notification messages.
const MaxMessageLen = 256

// DispatchNotification delivers a copy of n to every notification callback. A failing sink
// does not keep the others from receiving it. Failures are never dropped.
func (b *Bus) DispatchNotification(n *metric.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: nil notification", metric.ErrInvalid)
	}
	if err := n.Validate(); err != nil {
		return err
	}
	if n.Severity != metric.SeverityFailure && b.limiter.shouldDrop() {
		b.Complain(b.dropComplaint, "dropping notification: write queue limit reached")
		return ErrDropped
	}

	c := n.Clone()
	if c.Time == 0 {
		c.Time = b.now()
	}
	if c.Host == "" {
		c.Host = b.opts.Hostname
	}
	c.Message = strmutil.Truncate(c.Message, MaxMessageLen)

	sinks := b.reg.List(registry.KindNotification)
	if len(sinks) == 0 {
		b.Debugf("no notification callbacks registered, dropping '%s'", c.Message)
		return nil
	}

	var errs []error
	for _, e := range sinks {
		fn, ok := e.Func.(registry.NotificationFunc)
		if !ok || !e.Begin() {
			continue
		}
		err := fn(c, e.UserData)
		e.End()
		if err != nil {
			errs = append(errs, fmt.Errorf("notification callback '%s': %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Flush asks the named flush callback, or all of them if plugin is empty, to write out
// data older than timeout. An empty identifier means all identifiers.
func (b *Bus) Flush(plugin string, timeout time.Duration, identifier string) error {
	var errs []error
	found := false

	for _, e := range b.reg.List(registry.KindFlush) {
		if plugin != "" && !strings.EqualFold(plugin, e.Name) {
			continue
		}
		found = true
		fn, ok := e.Func.(registry.FlushFunc)
		if !ok || !e.Begin() {
			continue
		}
		err := fn(timeout, identifier, e.UserData)
		e.End()
		if err != nil {
			errs = append(errs, fmt.Errorf("flush callback '%s': %w", e.Name, err))
		}
	}

	if plugin != "" && !found {
		return fmt.Errorf("flush callback '%s': %w", plugin, registry.ErrNotFound)
	}
	return errors.Join(errs...)
}

// DispatchMissing hands an expired value list to the missing callbacks until one of them
// reports it handled it.
func (b *Bus) DispatchMissing(vl *metric.ValueList) bool {
	for _, e := range b.reg.List(registry.KindMissing) {
		fn, ok := e.Func.(registry.MissingFunc)
		if !ok || !e.Begin() {
			continue
		}
		handled, err := fn(vl, e.UserData)
		e.End()
		if err != nil {
			b.Warningf("missing callback '%s' failed for '%s': %v", e.Name, vl.Identifier(), err)
			continue
		}
		if handled {
			return true
		}
	}
	return false
}

// CheckTimeout expires stale value cache entries and dispatches them as missing.
func (b *Bus) CheckTimeout() int {
	return b.cache.CheckTimeout(func(vl *metric.ValueList) { b.DispatchMissing(vl) })
}
