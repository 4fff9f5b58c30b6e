// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/collectd/collectd-sub006/agent"
	"github.com/collectd/collectd-sub006/cli"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/buildinfo"

	_ "github.com/collectd/collectd-sub006/modules"
)

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, args ...interface{}) {}))

	opts := parseCLI()

	if opts.Version {
		fmt.Printf("collectd, version: %s\n", buildinfo.Version)
		return
	}

	if opts.Debug {
		logger.Level.Set(slog.LevelDebug)
	}

	a := agent.New(agent.Config{
		Name:        "collectd",
		ConfigFile:  opts.ConfigFile,
		PIDFile:     opts.PIDFile,
		WatchConfig: opts.WatchConfig,
	})

	switch {
	case opts.DumpConfig:
		os.Exit(exitCode(a, a.DumpConfig()))
	case opts.TestConfig:
		os.Exit(exitCode(a, a.TestConfig()))
	case opts.TestPlugins:
		os.Exit(exitCode(a, a.TestPlugins(context.Background())))
	}

	a.Infof("starting, %s", buildinfo.Info())
	if u, err := user.Current(); err == nil {
		a.Debugf("current user: name=%s, uid=%s", u.Username, u.Uid)
	}
	a.Infof("config file: %s, plugins: %v", a.ConfigFile, a.ModuleRegistry.Names())

	os.Exit(a.Run())
}

func exitCode(a *agent.Agent, err error) int {
	if err != nil {
		a.Error(err)
		return agent.ExitConfig
	}
	return agent.ExitOK
}

func parseCLI() *cli.Option {
	opt, err := cli.Parse(os.Args)
	if err != nil {
		if cli.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	return opt
}
