// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/lmittmann/tint"
)

const noticeTerminalLabel = "\u001B[34mNTC\u001B[0m"

func newTextHandler() slog.Handler {
	return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       Level,
		ReplaceAttr: plainAttr,
	})
}

// plainAttr drops the timestamp under journald, which adds its own, and writes
// lower case level labels.
func plainAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if isJournal {
			return slog.Attr{}
		}
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(a.Key, levelLabel(lvl))
		}
	}
	return a
}

func newTerminalHandler() slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		NoColor:     runtime.GOOS == "windows",
		AddSource:   true,
		Level:       Level,
		ReplaceAttr: terminalAttr,
	})
}

func terminalAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		return slog.Attr{}
	case slog.SourceKey:
		if !Level.Enabled(slog.LevelDebug) {
			return slog.Attr{}
		}
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelNotice {
			return slog.String(a.Key, noticeTerminalLabel)
		}
	}
	return a
}

// callerHandler sets the record source to the caller of the Logger method, skip frames
// above Handle.
type callerHandler struct {
	skip int
	next slog.Handler
}

func withCallerSkip(skip int, h slog.Handler) slog.Handler {
	if ch, ok := h.(*callerHandler); ok {
		h = ch.next
	}
	return &callerHandler{skip: skip, next: h}
}

func (h *callerHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *callerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &callerHandler{skip: h.skip, next: h.next.WithAttrs(attrs)}
}

func (h *callerHandler) WithGroup(name string) slog.Handler {
	return &callerHandler{skip: h.skip, next: h.next.WithGroup(name)}
}

func (h *callerHandler) Handle(ctx context.Context, r slog.Record) error {
	var pc [1]uintptr
	runtime.Callers(h.skip+2, pc[:])
	r.PC = pc[0]
	return h.next.Handle(ctx, r)
}
