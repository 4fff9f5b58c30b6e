// SPDX-License-Identifier: GPL-3.0-or-later

// Package strmutil provides bounded string manipulation utilities.
package strmutil

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncateText limits text length to maxLen bytes.
// UTF-8 safe - does not split multi-byte characters.
// Appends "..." when truncation occurs.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen < 3 {
		return Truncate(text, maxLen)
	}
	return Truncate(text, maxLen-3) + "..."
}

// Truncate cuts s to at most maxLen bytes without splitting a character.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cutoff := 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if cutoff+size > maxLen {
			break
		}
		cutoff += size
		i += size
	}
	return s[:cutoff]
}

// Split splits s on runs of spaces and tabs, returning at most max fields.
// Fields past max are dropped.
func Split(s string, max int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	if max > 0 && len(fields) > max {
		fields = fields[:max]
	}
	return fields
}

// Join concatenates parts with sep. It fails when the result would exceed maxLen
// bytes (maxLen <= 0 disables the check).
func Join(sep string, parts []string, maxLen int) (string, error) {
	s := strings.Join(parts, sep)
	if maxLen > 0 && len(s) > maxLen {
		return "", fmt.Errorf("joined string is %d bytes, limit is %d", len(s), maxLen)
	}
	return s, nil
}

// StripNewline removes all trailing CR and LF characters.
func StripNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// Sprintf formats like fmt.Sprintf and bounds the result to maxLen bytes.
func Sprintf(maxLen int, format string, a ...any) string {
	return Truncate(fmt.Sprintf(format, a...), maxLen)
}

// EscapeSlashes replaces '/' with '_' and drops a leading slash, so that a path can
// be used as an identifier field. A lone "/" becomes "root".
func EscapeSlashes(s string) string {
	if s == "/" {
		return "root"
	}
	s = strings.TrimPrefix(s, "/")
	return strings.ReplaceAll(s, "/", "_")
}

// ReplaceSpecial replaces characters that are not allowed in identifier fields.
func ReplaceSpecial(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '/', ' ':
			return '_'
		}
		return r
	}, s)
}
