// SPDX-License-Identifier: GPL-3.0-or-later

package module

import (
	"context"
	"log/slog"
	"time"

	"github.com/collectd/collectd-sub006/agent/dispatch"
	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/agent/typesdb"
	"github.com/collectd/collectd-sub006/agent/valuecache"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

// Host is the daemon side of a loaded plugin: the callback registry, the filter chain
// plug points, the data sets and the dispatch bus.
type Host struct {
	*registry.Registry

	// Name is the plugin name from LoadPlugin.
	Name string
	// Interval is the read interval set in the plugin's LoadPlugin block, zero means the
	// global interval.
	Interval time.Duration

	Factories *filterchain.Factories
	Types     *typesdb.Registry
	Bus       *dispatch.Bus
}

// Cache returns the value cache behind the bus.
func (h *Host) Cache() *valuecache.Cache { return h.Bus.Cache() }

// NewLogger returns a logger tagged with the plugin name.
func (h *Host) NewLogger() *logger.Logger {
	return logger.New().With(slog.String("plugin", h.Name))
}

// RegisterRead registers a read callback with the plugin's interval.
func (h *Host) RegisterRead(name string, fn registry.ReadFunc) error {
	return h.Registry.RegisterComplexRead("", name, fn, h.Interval, nil)
}

// RegisterComplexRead registers a read callback. A zero interval is replaced by the
// plugin's interval.
func (h *Host) RegisterComplexRead(group, name string, fn registry.ReadFunc, interval time.Duration, ud *registry.UserData) error {
	if interval <= 0 {
		interval = h.Interval
	}
	return h.Registry.RegisterComplexRead(group, name, fn, interval, ud)
}

func (h *Host) RegisterMatch(name string, mf filterchain.MatchFactory) error {
	return h.Factories.RegisterMatch(name, mf)
}

func (h *Host) RegisterTarget(name string, tf filterchain.TargetFactory) error {
	return h.Factories.RegisterTarget(name, tf)
}

// RegisterDataSet adds a data set to the types registry.
func (h *Host) RegisterDataSet(ds *metric.DataSet) error {
	return h.Types.Register(ds)
}

func (h *Host) DispatchValues(ctx context.Context, vl *metric.ValueList) error {
	return h.Bus.DispatchValues(ctx, vl)
}

func (h *Host) DispatchNotification(n *metric.Notification) error {
	return h.Bus.DispatchNotification(n)
}
