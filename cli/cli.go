// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"github.com/jessevdk/go-flags"

	"github.com/collectd/collectd-sub006/pkg/buildinfo"
)

// Option defines command line options.
type Option struct {
	ConfigFile  string `short:"C" long:"config" description:"configuration file" value-name:"FILE"`
	TestConfig  bool   `short:"t" long:"test-config" description:"test config and exit"`
	TestPlugins bool   `short:"T" long:"test-plugins" description:"test plugin read callbacks and exit"`
	DumpConfig  bool   `short:"D" long:"dump-config" description:"print the merged configuration as YAML and exit"`
	PIDFile     string `short:"P" long:"pidfile" description:"pid file" value-name:"FILE"`
	Foreground  bool   `short:"f" long:"foreground" description:"don't daemonize (always the case)"`
	WatchConfig bool   `long:"watch-config" description:"reload when the configuration file changes"`
	Debug       bool   `short:"d" long:"debug" description:"debug mode"`
	Version     bool   `short:"v" long:"version" description:"display the version and exit"`
}

// Parse returns parsed command-line flags in Option struct
func Parse(args []string) (*Option, error) {
	opt := &Option{
		ConfigFile: buildinfo.ConfigFile,
	}
	parser := flags.NewParser(opt, flags.Default)
	parser.Name = "collectd"
	parser.Usage = "[OPTIONS]"

	if len(args) > 0 {
		args = args[1:]
	}
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	return opt, nil
}

func IsHelp(err error) bool {
	return flags.WroteHelp(err)
}
