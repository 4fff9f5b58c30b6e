// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"sort"
	"strconv"
	"strings"
)

type Label struct {
	Name  string
	Value string
}

// Labels is a set of label pairs kept sorted by name, so two sets built in a
// different insertion order compare equal.
type Labels []Label

func (ls Labels) find(name string) (int, bool) {
	i := sort.Search(len(ls), func(i int) bool { return ls[i].Name >= name })
	return i, i < len(ls) && ls[i].Name == name
}

// Get returns the value of name and whether it is set.
func (ls Labels) Get(name string) (string, bool) {
	if i, ok := ls.find(name); ok {
		return ls[i].Value, true
	}
	return "", false
}

// Set adds or overrides a label. An empty value removes the label.
func (ls *Labels) Set(name, value string) error {
	if name == "" {
		return ErrInvalid
	}
	if value == "" {
		ls.Delete(name)
		return nil
	}
	i, ok := ls.find(name)
	if ok {
		(*ls)[i].Value = value
		return nil
	}
	*ls = append(*ls, Label{})
	copy((*ls)[i+1:], (*ls)[i:])
	(*ls)[i] = Label{Name: name, Value: value}
	return nil
}

func (ls *Labels) Delete(name string) {
	if i, ok := ls.find(name); ok {
		*ls = append((*ls)[:i], (*ls)[i+1:]...)
	}
}

func (ls Labels) Clone() Labels {
	if ls == nil {
		return nil
	}
	return append(Labels(nil), ls...)
}

func (ls *Labels) Reset() {
	*ls = nil
}

// Compare orders label sets lexically, pair by pair.
func (ls Labels) Compare(other Labels) int {
	for i := 0; i < len(ls) && i < len(other); i++ {
		if c := strings.Compare(ls[i].Name, other[i].Name); c != 0 {
			return c
		}
		if c := strings.Compare(ls[i].Value, other[i].Value); c != 0 {
			return c
		}
	}
	switch {
	case len(ls) < len(other):
		return -1
	case len(ls) > len(other):
		return 1
	}
	return 0
}

// String renders {a="b",c="d"}, or "" for an empty set.
func (ls Labels) String() string {
	if len(ls) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(l.Name)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(l.Value))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (ls Labels) Map() map[string]string {
	m := make(map[string]string, len(ls))
	for _, l := range ls {
		m[l.Name] = l.Value
	}
	return m
}
