// SPDX-License-Identifier: GPL-3.0-or-later

// Package conftree holds the parsed configuration: a tree of items, each carrying a key,
// a list of typed values and ordered children.
package conftree

import (
	"strconv"
	"strings"

	"github.com/gohugoio/hashstructure"
)

type ValueType uint8

const (
	String ValueType = iota
	Number
	Boolean
)

func (t ValueType) String() string {
	switch t {
	case String:
		return "string"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	default:
		return "unknown"
	}
}

type Value struct {
	Type    ValueType
	String  string
	Number  float64
	Boolean bool
}

func StringValue(s string) Value   { return Value{Type: String, String: s} }
func NumberValue(n float64) Value  { return Value{Type: Number, Number: n} }
func BooleanValue(b bool) Value    { return Value{Type: Boolean, Boolean: b} }
func (v Value) Equal(o Value) bool { return v == o }

// Text renders the value the way it would be written in a config file, without quotes.
func (v Value) Text() string {
	switch v.Type {
	case Number:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case Boolean:
		return strconv.FormatBool(v.Boolean)
	default:
		return v.String
	}
}

func (v Value) quoted() string {
	if v.Type == String {
		return strconv.Quote(v.String)
	}
	return v.Text()
}

type Item struct {
	Key      string
	Values   []Value
	Children []*Item
	Parent   *Item `hash:"ignore"`

	// File and Line locate the item in its source, both are zero for synthetic items.
	File string `hash:"ignore"`
	Line int    `hash:"ignore"`
}

func New(key string, values ...Value) *Item {
	return &Item{Key: key, Values: values}
}

// Hash fingerprints the keys, values and children of the tree. Source positions are
// not part of it.
func (it *Item) Hash() (uint64, error) {
	return hashstructure.Hash(it, nil)
}

// AddChild appends child and sets its parent.
func (it *Item) AddChild(child *Item) *Item {
	child.Parent = it
	it.Children = append(it.Children, child)
	return child
}

// Child returns the first child whose key matches (case-insensitive).
func (it *Item) Child(key string) *Item {
	for _, c := range it.Children {
		if strings.EqualFold(c.Key, key) {
			return c
		}
	}
	return nil
}

func (it *Item) IsBlock() bool { return len(it.Children) > 0 }

// Position returns "file:line" or the empty string for synthetic items.
func (it *Item) Position() string {
	if it == nil || it.File == "" {
		return ""
	}
	return it.File + ":" + strconv.Itoa(it.Line)
}

// Clone returns a deep copy, the copy's Parent is nil.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := &Item{Key: it.Key, File: it.File, Line: it.Line}
	if it.Values != nil {
		c.Values = append([]Value(nil), it.Values...)
	}
	for _, ch := range it.Children {
		c.AddChild(ch.Clone())
	}
	return c
}

// String renders the item and its children in config file syntax.
func (it *Item) String() string {
	var sb strings.Builder
	it.write(&sb, 0)
	return sb.String()
}

func (it *Item) write(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	if it.Key == "" {
		for _, c := range it.Children {
			c.write(sb, indent)
		}
		return
	}

	if len(it.Children) == 0 {
		sb.WriteString(pad + it.Key)
		for _, v := range it.Values {
			sb.WriteString(" " + v.quoted())
		}
		sb.WriteByte('\n')
		return
	}

	sb.WriteString(pad + "<" + it.Key)
	for _, v := range it.Values {
		sb.WriteString(" " + v.quoted())
	}
	sb.WriteString(">\n")
	for _, c := range it.Children {
		c.write(sb, indent+1)
	}
	sb.WriteString(pad + "</" + it.Key + ">\n")
}

// Equal compares keys, values and children recursively. Identity, parent and source
// position are ignored.
func Equal(a, b *Item) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Key != b.Key || len(a.Values) != len(b.Values) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Values {
		if !a.Values[i].Equal(b.Values[i]) {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
