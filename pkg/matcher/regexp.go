// SPDX-License-Identifier: GPL-3.0-or-later

package matcher

import (
	"regexp"
	"strings"
)

// NewRegExpMatcher compiles expr. Expressions that are plain literals,
// optionally anchored, become string matchers.
func NewRegExpMatcher(expr string) (Matcher, error) {
	switch expr {
	case "", "^", "$":
		return anyMatcher{}, nil
	case "^$", "$^":
		return stringFullMatcher(""), nil
	}

	body := expr
	anchorStart := strings.HasPrefix(body, "^")
	if anchorStart {
		body = body[1:]
	}
	anchorEnd := strings.HasSuffix(body, "$") && !strings.HasSuffix(body, `\$`)
	if anchorEnd {
		body = body[:len(body)-1]
	}

	lit, ok := regexpLiteral(body)
	if !ok {
		return regexp.Compile(expr)
	}
	return newStringMatcher(lit, anchorStart, anchorEnd), nil
}

// regexpLiteral unescapes s if it holds no regexp operators.
func regexpLiteral(s string) (string, bool) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			if i+1 == len(s) || !isRegExpMeta(s[i+1]) {
				return "", false
			}
			i++
			sb.WriteByte(s[i])
			continue
		}
		if isRegExpMeta(c) {
			return "", false
		}
		sb.WriteByte(c)
	}
	return sb.String(), true
}

func isRegExpMeta(c byte) bool {
	return strings.IndexByte(`\.+*?()|[]{}^$`, c) >= 0
}
