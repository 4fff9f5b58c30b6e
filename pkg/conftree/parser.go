// SPDX-License-Identifier: GPL-3.0-or-later

package conftree

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var reNumber = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?$`)

// ParseFile parses a single file. Include statements are kept as they are, see Loader.
func ParseFile(path string) (*Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{File: path, Msg: err.Error()}
	}
	defer func() { _ = f.Close() }()

	return Parse(f, path)
}

// Parse reads a config from r. name is used in error messages and recorded in Item.File.
func Parse(r io.Reader, name string) (*Item, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{File: name, Msg: err.Error()}
	}

	p := &parser{lex: lexer{src: bs, line: 1}, name: name}
	return p.parse()
}

type parser struct {
	lex  lexer
	name string
}

func (p *parser) errorf(line int, format string, a ...any) error {
	return &Error{File: p.name, Line: line, Msg: fmt.Sprintf(format, a...)}
}

func (p *parser) parse() (*Item, error) {
	root := &Item{File: p.name}
	cur := root

	for {
		st, err := p.lex.next()
		if err != nil {
			return nil, p.errorf(p.lex.line, "%v", err)
		}

		switch st.kind {
		case stmtEOF:
			if cur != root {
				return nil, p.errorf(cur.Line, "block <%s> is not closed", cur.Key)
			}
			return root, nil
		case stmtOpen:
			it := &Item{Key: st.key, Values: st.values, File: p.name, Line: st.line}
			cur.AddChild(it)
			cur = it
		case stmtClose:
			if cur == root {
				return nil, p.errorf(st.line, "unexpected </%s>", st.key)
			}
			if !strings.EqualFold(cur.Key, st.key) {
				return nil, p.errorf(st.line, "</%s> closes <%s> opened at line %d", st.key, cur.Key, cur.Line)
			}
			cur = cur.Parent
		case stmtOption:
			cur.AddChild(&Item{Key: st.key, Values: st.values, File: p.name, Line: st.line})
		}
	}
}

type stmtKind uint8

const (
	stmtEOF stmtKind = iota
	stmtOption
	stmtOpen
	stmtClose
)

type statement struct {
	kind   stmtKind
	key    string
	values []Value
	line   int
}

type lexer struct {
	src  []byte
	pos  int
	line int
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) eof() bool { return l.pos >= len(l.src) }

// skipBlank skips spaces, tabs and line continuations. It stops at a newline.
func (l *lexer) skipBlank() {
	for !l.eof() {
		switch c := l.peek(); {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '\\' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n':
			l.pos += 2
			l.line++
		case c == '\\' && l.pos+2 < len(l.src) && l.src[l.pos+1] == '\r' && l.src[l.pos+2] == '\n':
			l.pos += 3
			l.line++
		default:
			return
		}
	}
}

func (l *lexer) skipComment() {
	for !l.eof() && l.peek() != '\n' {
		l.pos++
	}
}

// endOfLine consumes trailing blanks, an optional comment and the newline.
func (l *lexer) endOfLine() error {
	l.skipBlank()
	if l.peek() == '#' {
		l.skipComment()
	}
	if l.eof() {
		return nil
	}
	if l.peek() != '\n' {
		return fmt.Errorf("unexpected %q", l.peek())
	}
	l.pos++
	l.line++
	return nil
}

func (l *lexer) next() (statement, error) {
skip:
	for {
		l.skipBlank()
		if l.eof() {
			return statement{kind: stmtEOF, line: l.line}, nil
		}
		switch l.peek() {
		case '\n':
			l.pos++
			l.line++
		case '#':
			l.skipComment()
		default:
			break skip
		}
	}

	st := statement{line: l.line}

	if l.peek() == '<' {
		l.pos++
		if l.peek() == '/' {
			l.pos++
			st.kind = stmtClose
		} else {
			st.kind = stmtOpen
		}
		l.skipBlank()
		key, err := l.key()
		if err != nil {
			return st, err
		}
		st.key = key

		if st.kind == stmtOpen {
			if st.values, err = l.values(true); err != nil {
				return st, err
			}
		}
		l.skipBlank()
		if l.peek() != '>' {
			return st, fmt.Errorf("missing '>' in block %q", key)
		}
		l.pos++
		return st, l.endOfLine()
	}

	key, err := l.key()
	if err != nil {
		return st, err
	}
	st.kind, st.key = stmtOption, key
	if st.values, err = l.values(false); err != nil {
		return st, err
	}
	return st, l.endOfLine()
}

func isKeyChar(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (l *lexer) key() (string, error) {
	start := l.pos
	for !l.eof() && isKeyChar(l.peek()) {
		l.pos++
	}
	if start == l.pos {
		return "", fmt.Errorf("expected a key, found %q", l.peek())
	}
	return string(l.src[start:l.pos]), nil
}

func (l *lexer) values(inBlock bool) ([]Value, error) {
	var vs []Value
	for {
		l.skipBlank()
		c := l.peek()
		if l.eof() || c == '\n' || c == '#' || (inBlock && c == '>') {
			return vs, nil
		}
		if c == '"' {
			s, err := l.quoted()
			if err != nil {
				return nil, err
			}
			vs = append(vs, StringValue(s))
			continue
		}
		vs = append(vs, l.unquoted(inBlock))
	}
}

func (l *lexer) quoted() (string, error) {
	line := l.line
	l.pos++ // opening quote

	var sb strings.Builder
	for {
		if l.eof() {
			return "", fmt.Errorf("unterminated string starting at line %d", line)
		}
		c := l.peek()
		switch c {
		case '"':
			l.pos++
			return sb.String(), nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return "", fmt.Errorf("unterminated string starting at line %d", line)
			}
			next := l.src[l.pos+1]
			l.pos += 2
			if next == '\n' {
				l.line++
				continue
			}
			sb.WriteByte(next)
		case '\n':
			return "", fmt.Errorf("newline in string starting at line %d", line)
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
}

func (l *lexer) unquoted(inBlock bool) Value {
	start := l.pos
	for !l.eof() {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '"' || c == '#' || (inBlock && c == '>') {
			break
		}
		if c == '\\' && l.pos+1 < len(l.src) && (l.src[l.pos+1] == '\n' || l.src[l.pos+1] == '\r') {
			break
		}
		l.pos++
	}
	return lexeme(string(l.src[start:l.pos]))
}

// lexeme types an unquoted token: number, boolean or string.
func lexeme(s string) Value {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return BooleanValue(true)
	case "false", "no", "off":
		return BooleanValue(false)
	}
	if reNumber.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NumberValue(f)
		}
	}
	if hex, neg := strings.CutPrefix(s, "-"); len(hex) > 2 && (hex[:2] == "0x" || hex[:2] == "0X") {
		if n, err := strconv.ParseUint(hex[2:], 16, 64); err == nil {
			if neg {
				return NumberValue(-float64(n))
			}
			return NumberValue(float64(n))
		}
	}
	return StringValue(s)
}
