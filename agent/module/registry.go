// SPDX-License-Identifier: GPL-3.0-or-later

package module

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// Creator is a plugin's entry in the build-time table.
	Creator struct {
		// Register is called once when the plugin is loaded. It registers the plugin's
		// callbacks with the host.
		Register func(h *Host) error
		// Description is informational, shown by the plugin listing.
		Description string
	}
	// Registry is a collection of Creators keyed by lower-case plugin name.
	Registry map[string]Creator
)

// DefaultRegistry is the table of plugins compiled into the binary.
var DefaultRegistry = Registry{}

// Register registers a plugin in the DefaultRegistry.
func Register(name string, creator Creator) {
	DefaultRegistry.Register(name, creator)
}

// Register registers a plugin. Registering a name twice is a programming error.
func (r Registry) Register(name string, creator Creator) {
	key := strings.ToLower(name)
	if _, ok := r[key]; ok {
		panic(fmt.Sprintf("%s is already in registry", name))
	}
	if creator.Register == nil {
		panic(fmt.Sprintf("%s has no Register function", name))
	}
	r[key] = creator
}

func (r Registry) Lookup(name string) (Creator, bool) {
	v, ok := r[strings.ToLower(name)]
	return v, ok
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
