// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/global"
	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/pkg/conftree"
)

var ErrPluginNotFound = errors.New("plugin not found")

// applyGlobals applies the global options of root to opts and returns the remaining
// top-level items.
func applyGlobals(opts *global.Options, root *conftree.Item) ([]*conftree.Item, error) {
	var rest []*conftree.Item
	var errs []error

	for _, ci := range root.Children {
		ok, err := opts.Apply(ci)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			rest = append(rest, ci)
		}
	}
	return rest, errors.Join(errs...)
}

// configure dispatches LoadPlugin, Plugin and Chain blocks. Chains are built last so that
// matches and targets of plugins loaded later in the file are available.
func (inst *instance) configure(items []*conftree.Item) error {
	var chains []*conftree.Item
	var errs []error

	for _, ci := range items {
		var err error
		switch strings.ToLower(ci.Key) {
		case "loadplugin":
			err = inst.loadPluginItem(ci)
		case "plugin":
			err = inst.pluginItem(ci)
		case "chain":
			chains = append(chains, ci)
		default:
			inst.Warningf("%v", conftree.Errorf(ci, "unknown option, ignored"))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if inst.opts.CollectInternalStats {
		if err := inst.reg.RegisterRead("collectd", inst.readInternalStats); err != nil {
			return err
		}
	}

	return inst.buildChains(chains)
}

// loadPluginItem loads a plugin from the build-time table:
//
//	<LoadPlugin "name">
//	  Interval 30
//	  FlushInterval 60
//	  FlushTimeout 10
//	</LoadPlugin>
func (inst *instance) loadPluginItem(ci *conftree.Item) error {
	name, err := conftree.GetString(ci)
	if err != nil {
		return err
	}

	var interval, flushInterval, flushTimeout time.Duration
	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "interval":
			interval, err = conftree.GetDuration(child)
		case "flushinterval":
			flushInterval, err = conftree.GetDuration(child)
		case "flushtimeout":
			flushTimeout, err = conftree.GetDuration(child)
		case "globals":
			_, err = conftree.GetBoolean(child)
		default:
			err = conftree.Errorf(child, "unknown LoadPlugin option")
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := inst.loadPlugin(name, interval); err != nil {
		return conftree.Errorf(ci, "%v", err)
	}
	if flushInterval > 0 {
		return inst.registerFlush(name, flushInterval, flushTimeout)
	}
	return nil
}

func (inst *instance) loadPlugin(name string, interval time.Duration) error {
	key := strings.ToLower(name)
	if _, ok := inst.loaded[key]; ok {
		inst.Warningf("plugin '%s' is already loaded", name)
		return nil
	}

	creator, ok := inst.modules.Lookup(key)
	if !ok {
		return fmt.Errorf("'%s': %w (available: %s)", name, ErrPluginNotFound, strings.Join(inst.modules.Names(), ", "))
	}

	h := &module.Host{
		Registry:  inst.reg,
		Name:      key,
		Interval:  interval,
		Factories: inst.factories,
		Types:     inst.types,
		Bus:       inst.bus,
	}
	if err := creator.Register(h); err != nil {
		return fmt.Errorf("plugin '%s': %w", name, err)
	}

	inst.loaded[key] = h
	inst.Infof("plugin '%s' loaded", key)
	return nil
}

// registerFlush flushes a plugin periodically through a read callback "flush-<name>".
func (inst *instance) registerFlush(name string, interval, timeout time.Duration) error {
	plugin := strings.ToLower(name)
	fn := func(context.Context, *registry.UserData) error {
		return inst.bus.Flush(plugin, timeout, "")
	}
	return inst.reg.RegisterComplexRead("", "flush-"+plugin, fn, interval, nil)
}

// pluginItem passes a <Plugin "name"> block to the plugin's configuration callback.
// A plugin with a simple callback receives every child as a key and its values joined
// by spaces.
func (inst *instance) pluginItem(ci *conftree.Item) error {
	name, err := conftree.GetString(ci)
	if err != nil {
		return err
	}
	key := strings.ToLower(name)

	if _, ok := inst.loaded[key]; !ok {
		if !inst.opts.AutoLoadPlugin {
			return conftree.Errorf(ci, "plugin '%s' is not loaded, a LoadPlugin line is missing or AutoLoadPlugin is disabled", name)
		}
		if err := inst.loadPlugin(name, 0); err != nil {
			return conftree.Errorf(ci, "%v", err)
		}
	}

	if e, ok := inst.reg.Get(registry.KindComplexConfig, key); ok {
		if err := e.Func.(registry.ComplexConfigFunc)(ci); err != nil {
			return fmt.Errorf("plugin '%s': %w", name, err)
		}
		return nil
	}

	e, ok := inst.reg.Get(registry.KindConfig, key)
	if !ok {
		return conftree.Errorf(ci, "plugin '%s' has no configuration callback", name)
	}
	fn := e.Func.(registry.ConfigFunc)

	var errs []error
	for _, child := range ci.Children {
		if child.IsBlock() {
			inst.Warningf("%v", conftree.Errorf(child, "plugin '%s' does not accept blocks, ignored", name))
			continue
		}
		if !e.AcceptsKey(child.Key) {
			errs = append(errs, conftree.Errorf(child, "plugin '%s' does not accept this option", name))
			continue
		}
		if err := fn(child.Key, joinValues(child)); err != nil {
			errs = append(errs, conftree.Errorf(child, "plugin '%s': %v", name, err))
		}
	}
	return errors.Join(errs...)
}

func joinValues(ci *conftree.Item) string {
	parts := make([]string, 0, len(ci.Values))
	for _, v := range ci.Values {
		parts = append(parts, v.Text())
	}
	return strings.Join(parts, " ")
}

func (inst *instance) buildChains(items []*conftree.Item) error {
	builder := filterchain.NewBuilder(inst.factories, inst.bus)

	var errs []error
	for _, ci := range items {
		if err := builder.Add(ci); err != nil {
			errs = append(errs, err)
		}
	}

	inst.chains = builder.Set()
	if err := errors.Join(errs...); err != nil {
		return err
	}
	inst.bus.SetChains(inst.chains)
	return nil
}
