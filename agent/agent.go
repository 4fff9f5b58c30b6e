// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/pidfile"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
)

// Exit codes of Run.
const (
	ExitOK      = 0
	ExitConfig  = 1
	ExitPIDFile = 2
)

// Config is an Agent configuration.
type Config struct {
	Name           string
	ConfigFile     string
	PIDFile        string
	WatchConfig    bool
	ModuleRegistry module.Registry
}

// Agent represents orchestrator.
type Agent struct {
	*logger.Logger

	Name           string
	ConfigFile     string
	PIDFile        string
	WatchConfig    bool
	ModuleRegistry module.Registry
	Out            io.Writer

	StopTimeout time.Duration
	WatchDelay  time.Duration
	LookupEnv   func(string) (string, bool)
}

// New creates a new Agent.
func New(cfg Config) *Agent {
	reg := cfg.ModuleRegistry
	if reg == nil {
		reg = module.DefaultRegistry
	}
	return &Agent{
		Logger: logger.New().With(
			slog.String("component", "agent"),
		),
		Name:           cfg.Name,
		ConfigFile:     cfg.ConfigFile,
		PIDFile:        cfg.PIDFile,
		WatchConfig:    cfg.WatchConfig,
		ModuleRegistry: reg,
		Out:            os.Stdout,
		StopTimeout:    30 * time.Second,
		WatchDelay:     time.Second,
		LookupEnv:      os.LookupEnv,
	}
}

func (a *Agent) loadConfig() (*conftree.Item, error) {
	root, err := conftree.Load(a.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file '%s': %w", a.ConfigFile, err)
	}
	return root, nil
}

// TestConfig reads and dispatches the configuration without starting anything.
func (a *Agent) TestConfig() error {
	root, err := a.loadConfig()
	if err != nil {
		return err
	}
	inst, err := newInstance(a.ModuleRegistry, root, a.LookupEnv)
	if err != nil {
		return err
	}
	inst.destroy()
	return nil
}

// TestPlugins initializes the plugins and runs every read callback once.
func (a *Agent) TestPlugins(ctx context.Context) error {
	root, err := a.loadConfig()
	if err != nil {
		return err
	}
	inst, err := newInstance(a.ModuleRegistry, root, a.LookupEnv)
	if err != nil {
		return err
	}
	return inst.testPlugins(ctx)
}

// DumpConfig writes the configuration, with includes expanded, as YAML to Out.
func (a *Agent) DumpConfig() error {
	root, err := a.loadConfig()
	if err != nil {
		return err
	}
	bs, err := conftree.DumpYAML(root)
	if err != nil {
		return err
	}
	_, err = a.Out.Write(bs)
	return err
}

// Run runs the daemon until it receives SIGINT or SIGTERM and returns the exit code.
func (a *Agent) Run() int {
	root, err := a.loadConfig()
	if err != nil {
		a.Error(err)
		return ExitConfig
	}
	inst, err := newInstance(a.ModuleRegistry, root, a.LookupEnv)
	if err != nil {
		a.Errorf("error in configuration: %v", err)
		return ExitConfig
	}

	path := a.PIDFile
	if path == "" {
		path = inst.opts.PIDFile
	}
	if path != "" {
		pf, err := pidfile.Create(path)
		if err != nil {
			a.Error(err)
			inst.destroy()
			return ExitPIDFile
		}
		defer func() {
			if err := pf.Remove(); err != nil {
				a.Warningf("unable to remove pid file: %v", err)
			}
		}()
	}

	return a.serve(inst)
}

func (a *Agent) serve(inst *instance) int {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(ch)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	var changed <-chan struct{}
	if a.WatchConfig {
		c, err := a.watchConfig(watchCtx)
		if err != nil {
			a.Warningf("unable to watch the config file: %v", err)
		} else {
			changed = c
		}
	}

	for {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := inst.run(ctx); err != nil {
				a.Error(err)
			}
		}()

		root, exit := a.waitEvent(inst, ch, changed)
		cancel()
		a.waitStopped(done)

		if exit {
			return ExitOK
		}

		next, err := newInstance(a.ModuleRegistry, root, a.LookupEnv)
		if err != nil {
			a.Errorf("error in configuration, terminating: %v", err)
			return ExitConfig
		}
		inst = next
	}
}

// waitEvent blocks until the running instance has to stop. It returns the new config
// tree for a restart, or exit set.
func (a *Agent) waitEvent(inst *instance, ch <-chan os.Signal, changed <-chan struct{}) (*conftree.Item, bool) {
	for {
		select {
		case sig := <-ch:
			switch sig {
			case syscall.SIGUSR1:
				a.Infof("received %s signal (%d). Flushing all plugins", sig, sig)
				inst.requestFlush()
				continue
			case syscall.SIGHUP:
				a.Infof("received %s signal (%d). Restarting running instance", sig, sig)
			default:
				a.Infof("received %s signal (%d). Terminating...", sig, sig)
				return nil, true
			}
		case <-changed:
			a.Info("config file changed. Restarting running instance")
		}

		root, err := a.loadConfig()
		if err != nil {
			a.Errorf("%v, keeping the running instance", err)
			continue
		}
		if h, err := root.Hash(); err == nil && inst.hash != 0 && h == inst.hash {
			a.Info("configuration is unchanged, keeping the running instance")
			continue
		}
		return root, false
	}
}

// waitStopped blocks until the instance has stopped. Callbacks of the old instance must
// not overlap with the next one, so the wait goes on after StopTimeout with a warning.
func (a *Agent) waitStopped(done <-chan struct{}) {
	t := time.NewTimer(a.StopTimeout)
	defer t.Stop()

	select {
	case <-done:
		return
	case <-t.C:
		a.Warningf("the instance is still stopping after %s, waiting for running callbacks", a.StopTimeout)
	}
	<-done
}
