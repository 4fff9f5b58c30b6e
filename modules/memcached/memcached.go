// SPDX-License-Identifier: GPL-3.0-or-later

// Package memcached reads the "stats" of memcached servers.
//
//	<Plugin "memcached">
//	  <Instance "local">
//	    Address "tcp://127.0.0.1:11211"
//	    Timeout 1
//	  </Instance>
//	  <Instance "sock">
//	    Socket "/var/run/memcached.sock"
//	  </Instance>
//	</Plugin>
package memcached

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"
	"github.com/collectd/collectd-sub006/pkg/socket"
)

const (
	pluginName     = "memcached"
	defaultAddress = "tcp://127.0.0.1:11211"
	defaultTimeout = time.Second
)

func init() {
	module.Register(pluginName, module.Creator{
		Register:    func(h *module.Host) error { return newPlugin(h).register() },
		Description: "memcached statistics over tcp or unix sockets",
	})
}

type emitter interface {
	DispatchValues(ctx context.Context, vl *metric.ValueList) error
}

type plugin struct {
	*logger.Logger

	host      *module.Host
	emitter   emitter
	instances []*instance
}

func newPlugin(h *module.Host) *plugin {
	return &plugin{
		Logger:  h.NewLogger(),
		host:    h,
		emitter: h,
	}
}

func (p *plugin) register() error {
	return errors.Join(
		p.host.RegisterComplexConfig(pluginName, p.config),
		p.host.RegisterInit(pluginName, p.init),
	)
}

func (p *plugin) config(ci *conftree.Item) error {
	var errs []error
	for _, child := range ci.Children {
		if !strings.EqualFold(child.Key, "Instance") {
			errs = append(errs, conftree.Errorf(child, "unknown %s option", pluginName))
			continue
		}
		inst, err := p.parseInstance(child)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.instances = append(p.instances, inst)
	}
	return errors.Join(errs...)
}

func (p *plugin) parseInstance(ci *conftree.Item) (*instance, error) {
	name, err := conftree.GetString(ci)
	if err != nil {
		return nil, err
	}

	var address, host, port, path string
	timeout := defaultTimeout

	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "address":
			address, err = conftree.GetString(child)
		case "host":
			host, err = conftree.GetString(child)
		case "port":
			port, err = conftree.GetService(child)
		case "socket":
			path, err = conftree.GetString(child)
		case "timeout":
			timeout, err = conftree.GetDuration(child)
		default:
			err = conftree.Errorf(child, "unknown Instance option")
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	switch {
	case address != "":
	case path != "":
		address = "unix://" + path
	case host != "" || port != "":
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = "11211"
		}
		address = "tcp://" + net.JoinHostPort(host, port)
	default:
		address = defaultAddress
	}

	return p.newInstance(name, address, timeout), nil
}

func (p *plugin) newInstance(name, address string, timeout time.Duration) *instance {
	return &instance{
		Logger:  p.Logger,
		name:    name,
		address: address,
		emitter: p.emitter,
		client: socket.New(socket.Config{
			Address:        address,
			ConnectTimeout: timeout,
			ReadTimeout:    timeout,
			WriteTimeout:   timeout,
			MaxRetries:     1,
		}),
	}
}

// init registers one read callback per instance, or one for the local server when no
// instance is configured.
func (p *plugin) init() error {
	if len(p.instances) == 0 {
		p.instances = append(p.instances, p.newInstance("", defaultAddress, defaultTimeout))
	}

	var errs []error
	for _, inst := range p.instances {
		name := pluginName
		if inst.name != "" {
			name += "-" + inst.name
		}
		ud := &registry.UserData{Data: inst, Free: func(any) { _ = inst.client.Disconnect() }}
		if err := p.host.RegisterComplexRead(pluginName, name, inst.read, 0, ud); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
