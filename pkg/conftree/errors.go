// SPDX-License-Identifier: GPL-3.0-or-later

package conftree

import (
	"errors"
	"fmt"
)

// ErrConfig is the kind of every error returned by this package.
var ErrConfig = errors.New("config error")

type Error struct {
	File string
	Line int
	Key  string
	Msg  string
}

func (e *Error) Error() string {
	var pos string
	switch {
	case e.File != "" && e.Line > 0:
		pos = fmt.Sprintf("%s:%d: ", e.File, e.Line)
	case e.File != "":
		pos = e.File + ": "
	}
	if e.Key != "" {
		return fmt.Sprintf("%s%q: %s", pos, e.Key, e.Msg)
	}
	return pos + e.Msg
}

func (e *Error) Unwrap() error { return ErrConfig }

// Errorf returns an error positioned at it.
func Errorf(it *Item, format string, a ...any) error {
	e := &Error{Msg: fmt.Sprintf(format, a...)}
	if it != nil {
		e.File, e.Line, e.Key = it.File, it.Line, it.Key
	}
	return e
}
