// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"sync"
	"time"
)

const maxComplainInterval = 24 * time.Hour

// Complainer rate limits a repeated error message. The first complaint is logged, after
// that the quiet period doubles with every logged complaint up to a day. Release logs
// once that the condition went away and resets the period.
type Complainer struct {
	mu       sync.Mutex
	initial  time.Duration
	interval time.Duration
	last     time.Time
	active   bool

	now func() time.Time
}

func NewComplainer(initial time.Duration) *Complainer {
	if initial <= 0 {
		initial = time.Minute
	}
	return &Complainer{initial: initial, now: time.Now}
}

// ShouldLog reports whether a complaint should be logged now.
func (c *Complainer) ShouldLog() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.active && now.Sub(c.last) < c.interval {
		return false
	}
	if !c.active {
		c.interval = c.initial
	} else {
		c.interval = min(c.interval*2, maxComplainInterval)
	}
	c.active = true
	c.last = now
	return true
}

// Release reports whether there was an active complaint and clears it.
func (c *Complainer) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.active
	c.active = false
	return was
}

// Complain logs a warning if ShouldLog allows it.
func (l *Logger) Complain(c *Complainer, format string, a ...any) {
	if c.ShouldLog() {
		l.Warningf(format, a...)
	}
}

// ReleaseComplaint logs a notice if c had an active complaint.
func (l *Logger) ReleaseComplaint(c *Complainer, format string, a ...any) {
	if c.Release() {
		l.Noticef(format, a...)
	}
}
