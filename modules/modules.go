// SPDX-License-Identifier: GPL-3.0-or-later

// Package modules links every built-in module into the binary.
package modules

import (
	_ "github.com/collectd/collectd-sub006/modules/dbquery"
	_ "github.com/collectd/collectd-sub006/modules/matchregex"
	_ "github.com/collectd/collectd-sub006/modules/memcached"
	_ "github.com/collectd/collectd-sub006/modules/targetset"
	_ "github.com/collectd/collectd-sub006/modules/throttle"
	_ "github.com/collectd/collectd-sub006/modules/writelog"
	_ "github.com/collectd/collectd-sub006/modules/writeprometheus"
	_ "github.com/collectd/collectd-sub006/modules/writeredis"
)
