// SPDX-License-Identifier: GPL-3.0-or-later

package matcher

import (
	"bytes"
	"strings"
)

type (
	stringFullMatcher    string
	stringPartialMatcher string
	stringPrefixMatcher  string
	stringSuffixMatcher  string
)

func newStringMatcher(s string, anchorStart, anchorEnd bool) Matcher {
	switch {
	case anchorStart && anchorEnd:
		return stringFullMatcher(s)
	case anchorStart:
		return stringPrefixMatcher(s)
	case anchorEnd:
		return stringSuffixMatcher(s)
	}
	return stringPartialMatcher(s)
}

func (m stringFullMatcher) Match(b []byte) bool       { return string(m) == string(b) }
func (m stringFullMatcher) MatchString(s string) bool { return string(m) == s }

func (m stringPartialMatcher) Match(b []byte) bool       { return bytes.Contains(b, []byte(m)) }
func (m stringPartialMatcher) MatchString(s string) bool { return strings.Contains(s, string(m)) }

func (m stringPrefixMatcher) Match(b []byte) bool       { return bytes.HasPrefix(b, []byte(m)) }
func (m stringPrefixMatcher) MatchString(s string) bool { return strings.HasPrefix(s, string(m)) }

func (m stringSuffixMatcher) Match(b []byte) bool       { return bytes.HasSuffix(b, []byte(m)) }
func (m stringSuffixMatcher) MatchString(s string) bool { return strings.HasSuffix(s, string(m)) }
