// SPDX-License-Identifier: GPL-3.0-or-later

package strmutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateText(t *testing.T) {
	tests := map[string]struct {
		input    string
		maxLen   int
		expected string
	}{
		"short text unchanged": {
			input:    "hello",
			maxLen:   100,
			expected: "hello",
		},
		"text exactly at limit": {
			input:    "hello",
			maxLen:   5,
			expected: "hello",
		},
		"text truncated with ellipsis": {
			input:    "hello world",
			maxLen:   8,
			expected: "hello...",
		},
		"multi-byte characters are not split": {
			input:    "ééééé",
			maxLen:   8,
			expected: "éé...",
		},
		"limit below ellipsis": {
			input:    "hello",
			maxLen:   2,
			expected: "he",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, TruncateText(test.input, test.maxLen))
			assert.LessOrEqual(t, len(TruncateText(test.input, test.maxLen)), test.maxLen)
		})
	}
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Split(" a\tb  c ", 0))
	assert.Equal(t, []string{"a", "b"}, Split("a b c", 2))
	assert.Empty(t, Split("   ", 4))
}

func TestJoin(t *testing.T) {
	s, err := Join("-", []string{"p", "x", "y"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "p-x-y", s)

	_, err = Join("-", []string{strings.Repeat("a", 10)}, 5)
	assert.Error(t, err)
}

func TestStripNewline(t *testing.T) {
	assert.Equal(t, "line", StripNewline("line\r\n\n"))
	assert.Equal(t, "line", StripNewline("line"))
}

func TestSprintf(t *testing.T) {
	assert.Equal(t, "abc", Sprintf(3, "%s%d", "abc", 123))
}

func TestEscapeSlashes(t *testing.T) {
	assert.Equal(t, "root", EscapeSlashes("/"))
	assert.Equal(t, "var_lib", EscapeSlashes("/var/lib"))
}
