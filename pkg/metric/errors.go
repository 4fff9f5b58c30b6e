// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import "errors"

var (
	// ErrInvalid is returned for malformed input.
	ErrInvalid = errors.New("invalid argument")
	// ErrUnknownType is returned when a value list names an unregistered data set.
	ErrUnknownType = errors.New("unknown type")
	// ErrValueCount is returned when a value list does not match its data set.
	ErrValueCount = errors.New("value count mismatch")
)
