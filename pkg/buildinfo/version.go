// SPDX-License-Identifier: GPL-3.0-or-later

package buildinfo

// Version stores the daemon's version number. It's set during the build process using build flags.
var Version = "v0.0.0"

// ConfigFile is the default configuration file.
// This value is set during the build process using build flags.
var ConfigFile = "/etc/collectd.conf"

// PIDFile is the default pid file.
var PIDFile = "/var/run/collectd.pid"
