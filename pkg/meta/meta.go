// SPDX-License-Identifier: GPL-3.0-or-later

package meta

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MaxKeyLen is the longest accepted key.
const MaxKeyLen = 127

type Type int

const (
	TypeNone Type = iota
	TypeString
	TypeSignedInt
	TypeUnsignedInt
	TypeDouble
	TypeBoolean
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeSignedInt:
		return "signed_int"
	case TypeUnsignedInt:
		return "unsigned_int"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	default:
		return "none"
	}
}

var (
	ErrNotFound     = errors.New("meta: key not found")
	ErrTypeMismatch = errors.New("meta: type mismatch")
	ErrKeyTooLong   = errors.New("meta: key too long")
)

type entry struct {
	typ Type
	s   string
	i   int64
	u   uint64
	d   float64
	b   bool
}

// Data is a mapping from string keys to typed values. It is safe for concurrent use.
// The zero value is not usable, use New.
type Data struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Data {
	return &Data{entries: make(map[string]entry)}
}

func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &Data{entries: make(map[string]entry, len(d.entries))}
	for k, v := range d.entries {
		c.entries[k] = v
	}
	return c
}

// Len returns the number of keys. A nil Data is empty.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Data) Exists(key string) bool {
	return d.Type(key) != TypeNone
}

func (d *Data) Type(key string) Type {
	if d == nil {
		return TypeNone
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[key].typ
}

// Keys returns all keys in lexical order.
func (d *Data) Keys() []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	d.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (d *Data) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[key]; !ok {
		return ErrNotFound
	}
	delete(d.entries, key)
	return nil
}

func (d *Data) AddString(key, value string) error {
	return d.add(key, entry{typ: TypeString, s: value})
}

func (d *Data) AddSignedInt(key string, value int64) error {
	return d.add(key, entry{typ: TypeSignedInt, i: value})
}

func (d *Data) AddUnsignedInt(key string, value uint64) error {
	return d.add(key, entry{typ: TypeUnsignedInt, u: value})
}

func (d *Data) AddDouble(key string, value float64) error {
	return d.add(key, entry{typ: TypeDouble, d: value})
}

func (d *Data) AddBoolean(key string, value bool) error {
	return d.add(key, entry{typ: TypeBoolean, b: value})
}

func (d *Data) GetString(key string) (string, error) {
	e, err := d.get(key, TypeString)
	return e.s, err
}

func (d *Data) GetSignedInt(key string) (int64, error) {
	e, err := d.get(key, TypeSignedInt)
	return e.i, err
}

func (d *Data) GetUnsignedInt(key string) (uint64, error) {
	e, err := d.get(key, TypeUnsignedInt)
	return e.u, err
}

func (d *Data) GetDouble(key string) (float64, error) {
	e, err := d.get(key, TypeDouble)
	return e.d, err
}

func (d *Data) GetBoolean(key string) (bool, error) {
	e, err := d.get(key, TypeBoolean)
	return e.b, err
}

// AsString renders any value as a string.
func (d *Data) AsString(key string) (string, error) {
	e, err := d.get(key, TypeNone)
	if err != nil {
		return "", err
	}
	switch e.typ {
	case TypeString:
		return e.s, nil
	case TypeSignedInt:
		return strconv.FormatInt(e.i, 10), nil
	case TypeUnsignedInt:
		return strconv.FormatUint(e.u, 10), nil
	case TypeDouble:
		return strconv.FormatFloat(e.d, 'g', -1, 64), nil
	case TypeBoolean:
		return strconv.FormatBool(e.b), nil
	}
	return "", fmt.Errorf("meta: unknown type %d for key '%s'", e.typ, key)
}

func (d *Data) add(key string, e entry) error {
	if len(key) > MaxKeyLen {
		return ErrKeyTooLong
	}
	d.mu.Lock()
	d.entries[key] = e
	d.mu.Unlock()
	return nil
}

func (d *Data) get(key string, typ Type) (entry, error) {
	if d == nil {
		return entry{}, ErrNotFound
	}
	d.mu.Lock()
	e, ok := d.entries[key]
	d.mu.Unlock()

	if !ok {
		return entry{}, ErrNotFound
	}
	if typ != TypeNone && e.typ != typ {
		return entry{}, fmt.Errorf("%w: key '%s' is %s, not %s", ErrTypeMismatch, key, e.typ, typ)
	}
	return e, nil
}
