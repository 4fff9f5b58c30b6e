// SPDX-License-Identifier: GPL-3.0-or-later

package conftree

import (
	"gopkg.in/yaml.v2"
)

// MarshalYAML renders an item as a mapping with the key, its values (typed scalars) and
// children. A root item (empty key) renders as the list of its children.
func (it *Item) MarshalYAML() (any, error) {
	if it.Key == "" {
		return it.Children, nil
	}

	ms := yaml.MapSlice{{Key: "key", Value: it.Key}}
	if len(it.Values) > 0 {
		vs := make([]any, 0, len(it.Values))
		for _, v := range it.Values {
			switch v.Type {
			case Number:
				vs = append(vs, v.Number)
			case Boolean:
				vs = append(vs, v.Boolean)
			default:
				vs = append(vs, v.String)
			}
		}
		ms = append(ms, yaml.MapItem{Key: "values", Value: vs})
	}
	if len(it.Children) > 0 {
		ms = append(ms, yaml.MapItem{Key: "children", Value: it.Children})
	}
	return ms, nil
}

// DumpYAML marshals the tree.
func DumpYAML(it *Item) ([]byte, error) {
	return yaml.Marshal(it)
}
