// SPDX-License-Identifier: GPL-3.0-or-later

// Package writelog writes value lists and notifications to the daemon log.
//
//	<Plugin "write_log">
//	  Format "JSON"
//	  StoreRates true
//	</Plugin>
package writelog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

const pluginName = "write_log"

func init() {
	module.Register(pluginName, module.Creator{
		Register:    func(h *module.Host) error { return newPlugin(h).register() },
		Description: "logs value lists in graphite or json format and notifications",
	})
}

type format int

const (
	formatGraphite format = iota
	formatJSON
)

type plugin struct {
	*logger.Logger

	host       *module.Host
	format     format
	prefix     string
	storeRates bool

	// rates returns the per-second rates of vl; the value cache by default.
	rates func(vl *metric.ValueList) ([]float64, error)
	out   func(line string)
}

func newPlugin(h *module.Host) *plugin {
	p := &plugin{
		Logger: h.NewLogger(),
		host:   h,
	}
	p.rates = func(vl *metric.ValueList) ([]float64, error) { return p.host.Cache().GetRate(vl) }
	p.out = func(line string) { p.Info(line) }
	return p
}

func (p *plugin) register() error {
	return errors.Join(
		p.host.RegisterComplexConfig(pluginName, p.config),
		p.host.RegisterWrite(pluginName, p.write, nil),
		p.host.RegisterNotification(pluginName, p.notify, nil),
	)
}

func (p *plugin) config(ci *conftree.Item) error {
	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "format":
			var s string
			if s, err = conftree.GetString(child); err == nil {
				switch strings.ToLower(s) {
				case "graphite":
					p.format = formatGraphite
				case "json":
					p.format = formatJSON
				default:
					err = conftree.Errorf(child, "unknown format '%s'", s)
				}
			}
		case "prefix":
			p.prefix, err = conftree.GetString(child)
		case "storerates":
			p.storeRates, err = conftree.GetBoolean(child)
		default:
			err = conftree.Errorf(child, "unknown %s option", pluginName)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *plugin) write(ds *metric.DataSet, vl *metric.ValueList, _ *registry.UserData) error {
	var rates []float64
	if p.storeRates {
		var err error
		if rates, err = p.rates(vl); err != nil {
			return fmt.Errorf("%s: %w", vl.Identifier(), err)
		}
	}

	switch p.format {
	case formatJSON:
		line, err := formatValueListJSON(ds, vl, rates)
		if err != nil {
			return err
		}
		p.out(line)
	default:
		for _, line := range graphiteLines(p.prefix, ds, vl, rates) {
			p.out(line)
		}
	}
	return nil
}

func (p *plugin) notify(n *metric.Notification, _ *registry.UserData) error {
	line, err := formatNotificationJSON(n)
	if err != nil {
		return err
	}
	switch n.Severity {
	case metric.SeverityFailure:
		p.Error(line)
	case metric.SeverityWarning:
		p.Warning(line)
	default:
		p.Notice(line)
	}
	return nil
}
