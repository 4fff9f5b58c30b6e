// SPDX-License-Identifier: GPL-3.0-or-later

package matcher

import "fmt"

// Matcher reports whether a value identifier field matches a pattern.
type Matcher interface {
	Match(b []byte) bool
	MatchString(string) bool
}

// Format selects how a pattern is interpreted.
type Format string

const (
	FmtString Format = "string"
	FmtGlob   Format = "glob"
	FmtRegExp Format = "regexp"

	separator = " "
)

// Must panics if err is non-nil.
func Must(m Matcher, err error) Matcher {
	if err != nil {
		panic(err)
	}
	return m
}

// New compiles expr in the given format.
func New(format Format, expr string) (Matcher, error) {
	switch format {
	case FmtString:
		return stringFullMatcher(expr), nil
	case FmtGlob:
		return NewGlobMatcher(expr)
	case FmtRegExp:
		return NewRegExpMatcher(expr)
	}
	return nil, fmt.Errorf("unsupported matcher format '%s'", format)
}

// Parse picks the format from a prefix. Both "~ expr" and "regexp:expr"
// forms are accepted; an unprefixed pattern is a glob.
func Parse(line string) (Matcher, error) {
	if len(line) >= 2 && line[1:2] == separator {
		switch line[0] {
		case '=':
			return New(FmtString, line[2:])
		case '~':
			return New(FmtRegExp, line[2:])
		case '*':
			return New(FmtGlob, line[2:])
		}
	}
	for _, f := range []Format{FmtString, FmtGlob, FmtRegExp} {
		if rest, ok := cutPrefix(line, string(f)+":"); ok {
			return New(f, rest)
		}
	}
	return New(FmtGlob, line)
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return s, false
	}
	return s[len(prefix):], true
}

type anyMatcher struct{}

func (anyMatcher) Match([]byte) bool       { return true }
func (anyMatcher) MatchString(string) bool { return true }
