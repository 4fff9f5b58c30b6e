// SPDX-License-Identifier: GPL-3.0-or-later

// Package writeredis stores value lists in redis sorted sets, one set per identifier.
//
//	<Plugin "write_redis">
//	  <Node "local">
//	    Host "localhost"
//	    Port "6379"
//	    Timeout 1
//	    Prefix "collectd/"
//	    MaxSetSize 1440
//	    StoreRates true
//	  </Node>
//	</Plugin>
package writeredis

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/redis/go-redis/v9"
)

const (
	pluginName     = "write_redis"
	defaultPrefix  = "collectd/"
	defaultTimeout = time.Second
)

func init() {
	module.Register(pluginName, module.Creator{
		Register:    func(h *module.Host) error { return newPlugin(h).register() },
		Description: "stores values in redis sorted sets",
	})
}

type plugin struct {
	*logger.Logger

	host  *module.Host
	nodes []*node

	newClient func(opts *redis.Options) redisClient
	rates     func(vl *metric.ValueList) ([]float64, error)
}

func newPlugin(h *module.Host) *plugin {
	p := &plugin{
		Logger: h.NewLogger(),
		host:   h,
		newClient: func(opts *redis.Options) redisClient {
			return redis.NewClient(opts)
		},
	}
	p.rates = func(vl *metric.ValueList) ([]float64, error) { return p.host.Cache().GetRate(vl) }
	return p
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
		if !strings.EqualFold(child.Key, "Node") {
			errs = append(errs, conftree.Errorf(child, "unknown %s option", pluginName))
			continue
		}
		n, err := p.parseNode(child)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.nodes = append(p.nodes, n)
	}
	return errors.Join(errs...)
}

func (p *plugin) parseNode(ci *conftree.Item) (*node, error) {
	name, err := conftree.GetString(ci)
	if err != nil {
		return nil, err
	}

	n := &node{
		Logger: p.Logger.With("node", name),
		name:   name,
		prefix: defaultPrefix,
		rates:  p.rates,
	}
	var address, host, port, password string
	var database int
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
		case "password":
			password, err = conftree.GetString(child)
		case "database":
			database, err = conftree.GetInt(child)
		case "timeout":
			timeout, err = conftree.GetDuration(child)
		case "prefix":
			n.prefix, err = conftree.GetString(child)
		case "maxsetsize":
			n.maxSetSize, err = conftree.GetInt(child)
		case "maxsetduration":
			n.maxSetDuration, err = conftree.GetDuration(child)
		case "storerates":
			n.storeRates, err = conftree.GetBoolean(child)
		default:
			err = conftree.Errorf(child, "unknown Node option")
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var opts *redis.Options
	if address != "" {
		if opts, err = redis.ParseURL(address); err != nil {
			return nil, conftree.Errorf(ci, "invalid Address: %v", err)
		}
	} else {
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		opts = &redis.Options{Addr: net.JoinHostPort(host, port), DB: database}
	}
	if opts.Password == "" {
		opts.Password = password
	}
	opts.PoolSize = 1
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	n.opts = opts
	n.timeout = timeout

	return n, nil
}

func (p *plugin) init() error {
	var errs []error
	for _, n := range p.nodes {
		n.client = p.newClient(n.opts)
		ud := &registry.UserData{Data: n, Free: func(any) { n.close() }}
		if err := p.host.RegisterWrite(pluginName+"/"+n.name, n.write, ud); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
