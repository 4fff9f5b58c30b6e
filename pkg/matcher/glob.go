// SPDX-License-Identifier: GPL-3.0-or-later

package matcher

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// globMatcher implements Matcher, it uses doublestar.Match to match.
type globMatcher string

var errBadGlobPattern = errors.New("bad glob pattern")

// NewGlobMatcher create a new matcher with glob format
func NewGlobMatcher(expr string) (Matcher, error) {
	switch expr {
	case "":
		return stringFullMatcher(""), nil
	case "*", "**":
		return anyMatcher{}, nil
	}

	if !doublestar.ValidatePattern(expr) {
		return nil, errBadGlobPattern
	}

	// a pattern without meta characters is a plain string
	if !strings.ContainsAny(expr, `*?[\{`) {
		return stringFullMatcher(expr), nil
	}
	if lit, ok := unescapeLiteral(expr); ok {
		return stringFullMatcher(lit), nil
	}

	return globMatcher(expr), nil
}

func (m globMatcher) Match(b []byte) bool { return m.MatchString(string(b)) }

func (m globMatcher) MatchString(line string) bool {
	ok, _ := doublestar.Match(string(m), line)
	return ok
}

// unescapeLiteral reports whether expr only contains escaped meta characters.
func unescapeLiteral(expr string) (string, bool) {
	var sb strings.Builder
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch c {
		case '\\':
			if i+1 == len(expr) {
				return "", false
			}
			i++
			sb.WriteByte(expr[i])
		case '*', '?', '[', '{':
			return "", false
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), true
}
