// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/collectd/collectd-sub006/agent/dispatch"
	"github.com/collectd/collectd-sub006/agent/filterchain"
	"github.com/collectd/collectd-sub006/agent/global"
	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/agent/scheduler"
	"github.com/collectd/collectd-sub006/agent/typesdb"
	"github.com/collectd/collectd-sub006/agent/valuecache"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"golang.org/x/sync/errgroup"
)

// instance is one configured generation of the daemon. A reload stops the running
// instance and configures a new one from the re-read file.
type instance struct {
	*logger.Logger

	opts      *global.Options
	modules   module.Registry
	reg       *registry.Registry
	types     *typesdb.Registry
	factories *filterchain.Factories
	bus       *dispatch.Bus
	sched     *scheduler.Scheduler
	chains    *filterchain.Set
	loaded    map[string]*module.Host

	flushReq chan struct{}
	// hash of the config tree the instance was built from
	hash uint64
}

func newInstance(modules module.Registry, root *conftree.Item, lookupEnv func(string) (string, bool)) (*instance, error) {
	opts := global.Default()

	items, err := applyGlobals(opts, root)
	if err != nil {
		return nil, err
	}
	if err := opts.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	if err := opts.Finalize(); err != nil {
		return nil, err
	}
	global.Set(opts)
	if opts.LogLevel != "" && !logger.Level.SetByName(opts.LogLevel) {
		logger.Warningf("unknown LogLevel '%s', keeping '%s'", opts.LogLevel, logger.Level.Get())
	}

	types, err := loadTypes(opts.TypesDB)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	cache := valuecache.New()
	cache.SetTimeout(opts.Timeout)

	inst := &instance{
		Logger:    logger.New().With(slog.String("component", "instance")),
		opts:      opts,
		modules:   modules,
		reg:       reg,
		types:     types,
		factories: filterchain.NewFactories(),
		bus:       dispatch.New(dispatch.Config{Registry: reg, Types: types, Cache: cache, Options: opts}),
		loaded:    make(map[string]*module.Host),
		flushReq:  make(chan struct{}, 1),
	}
	inst.sched = scheduler.New(scheduler.Config{
		Registry:        reg,
		Workers:         opts.ReadThreads,
		Interval:        opts.Interval,
		MaxReadInterval: opts.MaxReadInterval,
	})

	if err := inst.configure(items); err != nil {
		inst.destroy()
		return nil, err
	}
	if inst.hash, err = root.Hash(); err != nil {
		inst.Warningf("unable to hash the configuration: %v", err)
	}
	return inst, nil
}

func loadTypes(files []string) (*typesdb.Registry, error) {
	if len(files) == 0 {
		return typesdb.NewDefault(), nil
	}
	types := typesdb.New()
	for _, file := range files {
		if err := types.LoadFile(file); err != nil {
			return nil, err
		}
	}
	return types, nil
}

// init runs the init callbacks. A plugin whose init fails loses its read callbacks.
func (inst *instance) init() {
	for _, e := range inst.reg.List(registry.KindInit) {
		err := e.Func.(registry.InitFunc)()
		if err == nil {
			continue
		}
		inst.Errorf("initialization of plugin '%s' failed: %v, the read function has been unregistered", e.Name, err)
		_ = inst.reg.Unregister(registry.KindRead, e.Name)
		inst.reg.UnregisterReadGroup(e.Name)
	}
}

// run starts the read pipeline and blocks until ctx is done, then shuts the instance down.
func (inst *instance) run(ctx context.Context) error {
	inst.Info("instance is started")
	defer func() { inst.Info("instance is stopped") }()

	inst.init()

	inst.sched.Start(ctx)
	defer inst.shutdown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { inst.runTimeoutCheck(ctx); return nil })
	g.Go(func() error { inst.runFlushRequests(ctx); return nil })
	return g.Wait()
}

// testPlugins runs init and every read callback once, then shuts the instance down.
func (inst *instance) testPlugins(ctx context.Context) error {
	inst.init()
	defer inst.shutdown()
	return inst.sched.ReadAll(ctx)
}

func (inst *instance) runTimeoutCheck(ctx context.Context) {
	tk := time.NewTicker(inst.opts.Interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if n := inst.bus.CheckTimeout(); n > 0 {
				inst.Debugf("%d values timed out", n)
			}
		}
	}
}

// requestFlush asks the running instance to flush all plugins.
func (inst *instance) requestFlush() {
	select {
	case inst.flushReq <- struct{}{}:
	default:
	}
}

func (inst *instance) runFlushRequests(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-inst.flushReq:
			inst.flushAll()
		}
	}
}

func (inst *instance) flushAll() {
	if err := inst.bus.Flush("", 0, ""); err != nil {
		inst.Warningf("flush: %v", err)
	}
}

func (inst *instance) shutdown() {
	inst.sched.Stop()
	inst.flushAll()

	for _, e := range inst.reg.Shutdowns() {
		if err := e.Func.(registry.ShutdownFunc)(); err != nil {
			inst.Errorf("shutdown of plugin '%s' failed: %v", e.Name, err)
		}
	}
	inst.destroy()
}

func (inst *instance) destroy() {
	inst.bus.SetChains(nil)
	if inst.chains != nil {
		inst.chains.Destroy()
		inst.chains = nil
	}
	inst.reg.Destroy()
}

func (inst *instance) readInternalStats(ctx context.Context, _ *registry.UserData) error {
	st := inst.bus.Stats()

	vls := []*metric.ValueList{
		{
			Plugin:         "collectd",
			PluginInstance: "write_queue",
			Type:           "queue_length",
			Values:         []metric.Value{metric.Gauge(float64(st.InFlight))},
		},
		{
			Plugin:         "collectd",
			PluginInstance: "write_queue",
			Type:           "derive",
			TypeInstance:   "dropped",
			Values:         []metric.Value{metric.Derive(int64(st.Dropped))},
		},
		{
			Plugin:         "collectd",
			PluginInstance: "cache",
			Type:           "cache_size",
			Values:         []metric.Value{metric.Gauge(float64(st.Cached))},
		},
	}

	var errs []error
	for _, vl := range vls {
		if err := inst.bus.DispatchValues(ctx, vl); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", vl.Identifier(), err))
		}
	}
	return errors.Join(errs...)
}
