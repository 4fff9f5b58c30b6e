// SPDX-License-Identifier: GPL-3.0-or-later

package modules

import (
	"testing"

	"github.com/collectd/collectd-sub006/agent/module"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinModulesRegistered(t *testing.T) {
	assert.Equal(t, []string{
		"dbquery",
		"match_regex",
		"match_throttle_metadata_keys",
		"memcached",
		"target_set",
		"write_log",
		"write_prometheus",
		"write_redis",
	}, module.DefaultRegistry.Names())
}
