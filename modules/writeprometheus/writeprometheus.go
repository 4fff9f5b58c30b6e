// SPDX-License-Identifier: GPL-3.0-or-later

// Package writeprometheus exposes the latest values in the Prometheus text format.
//
//	<Plugin "write_prometheus">
//	  Host "0.0.0.0"
//	  Port "9103"
//	  StalenessDelta 300
//	  Plugin "/^(cpu|memory)$/"
//	  IgnoreSelected false
//	</Plugin>
package writeprometheus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
)

const (
	pluginName            = "write_prometheus"
	defaultPort           = "9103"
	defaultStalenessDelta = 300 * time.Second
	shutdownTimeout       = 5 * time.Second
)

func init() {
	module.Register(pluginName, module.Creator{
		Register:    func(h *module.Host) error { return newPlugin(h).register() },
		Description: "serves the latest values on a Prometheus scrape endpoint",
	})
}

type plugin struct {
	*logger.Logger

	host    *module.Host
	addr    string
	metrics *collection

	srv *http.Server
	ln  net.Listener
}

func newPlugin(h *module.Host) *plugin {
	return &plugin{
		Logger:  h.NewLogger(),
		host:    h,
		addr:    net.JoinHostPort("", defaultPort),
		metrics: newCollection(defaultStalenessDelta),
	}
}

func (p *plugin) register() error {
	return errors.Join(
		p.host.RegisterComplexConfig(pluginName, p.config),
		p.host.RegisterInit(pluginName, p.init),
		p.host.RegisterWrite(pluginName, p.metrics.write, nil),
		p.host.RegisterShutdown(pluginName, p.shutdown),
	)
}

func (p *plugin) config(ci *conftree.Item) error {
	host, port := "", defaultPort

	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "host":
			host, err = conftree.GetString(child)
		case "port":
			port, err = conftree.GetService(child)
		case "stalenessdelta":
			p.metrics.staleness, err = conftree.GetDuration(child)
		case "plugin":
			var pattern string
			if pattern, err = conftree.GetString(child); err == nil {
				if err = p.metrics.plugins.Add(pattern); err != nil {
					err = conftree.Errorf(child, "%v", err)
				}
			}
		case "ignoreselected":
			var invert bool
			if invert, err = conftree.GetBoolean(child); err == nil {
				p.metrics.plugins.SetInvert(invert)
			}
		default:
			err = conftree.Errorf(child, "unknown %s option", pluginName)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	p.addr = net.JoinHostPort(host, port)
	return errors.Join(errs...)
}

func (p *plugin) init() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.addr, err)
	}
	p.ln = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.metrics)
	mux.Handle("/", p.metrics)
	p.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.Infof("serving metrics on %s", ln.Addr())
	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.Errorf("http server: %v", err)
		}
	}()
	return nil
}

func (p *plugin) shutdown() error {
	if p.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := p.srv.Shutdown(ctx)
	p.srv = nil
	return err
}
