// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"log/slog"
	"strings"
)

const (
	levelNotice  = slog.Level(2)
	levelDisable = slog.Level(99)
)

// syslogLevels maps LogLevel names to slog levels. The daemon never logs above ERROR, so
// emerg, alert and crit silence it.
var syslogLevels = map[string]slog.Level{
	"err":       slog.LevelError,
	"error":     slog.LevelError,
	"warn":      slog.LevelWarn,
	"warning":   slog.LevelWarn,
	"notice":    levelNotice,
	"info":      slog.LevelInfo,
	"debug":     slog.LevelDebug,
	"emerg":     levelDisable,
	"emergency": levelDisable,
	"alert":     levelDisable,
	"crit":      levelDisable,
	"critical":  levelDisable,
}

// ParseLevel resolves a syslog style level name, case-insensitive.
func ParseLevel(name string) (slog.Level, bool) {
	lvl, ok := syslogLevels[strings.ToLower(strings.TrimSpace(name))]
	return lvl, ok
}

// levelLabel is the label of lvl in plain text output.
func levelLabel(lvl slog.Level) string {
	switch {
	case lvl >= slog.LevelError:
		return "error"
	case lvl >= slog.LevelWarn:
		return "warning"
	case lvl >= levelNotice:
		return "notice"
	case lvl >= slog.LevelInfo:
		return "info"
	}
	return "debug"
}

// Level is the minimum level shared by every Logger.
var Level = &LevelVar{}

type LevelVar struct {
	v slog.LevelVar
}

func (l *LevelVar) Level() slog.Level           { return l.v.Level() }
func (l *LevelVar) Get() slog.Level             { return l.v.Level() }
func (l *LevelVar) Set(lvl slog.Level)          { l.v.Set(lvl) }
func (l *LevelVar) Enabled(lvl slog.Level) bool { return lvl >= l.v.Level() }

// SetByName sets the level from a LogLevel option value. Unknown names are ignored and
// reported as false.
func (l *LevelVar) SetByName(name string) bool {
	lvl, ok := ParseLevel(name)
	if ok {
		l.v.Set(lvl)
	}
	return ok
}
