// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package matcher implements string matchers used by ignore-lists and filter chain matches.

Supported formats, selected by a one character prefix followed by a space:

	"= "  string, exact match
	"~ "  regexp, see https://golang.org/pkg/regexp/syntax/
	"* "  glob, see https://github.com/bmatcuk/doublestar

A pattern without a prefix is treated as a glob. Regular expressions that are plain
literals (optionally anchored with ^ and $) are reduced to the cheaper string matchers.
*/
package matcher
