// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"context"
	"time"
)

type readContextKey struct{}

// ReadContext describes the read callback a value list is dispatched from.
type ReadContext struct {
	Plugin   string
	Interval time.Duration
}

// WithReadContext returns a context carrying the read callback's plugin name and interval.
// Values dispatched with it and without an interval of their own inherit the interval.
func WithReadContext(ctx context.Context, plugin string, interval time.Duration) context.Context {
	return context.WithValue(ctx, readContextKey{}, ReadContext{Plugin: plugin, Interval: interval})
}

func ReadContextFrom(ctx context.Context) (ReadContext, bool) {
	if ctx == nil {
		return ReadContext{}, false
	}
	rc, ok := ctx.Value(readContextKey{}).(ReadContext)
	return rc, ok
}
