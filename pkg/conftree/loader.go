// SPDX-License-Identifier: GPL-3.0-or-later

package conftree

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/collectd/collectd-sub006/logger"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/go-homedir"
)

// MaxIncludeDepth bounds Include nesting. The top level file has depth 0.
const MaxIncludeDepth = 8

var errIncludeDepth = errors.New("maximum include depth reached")

// Loader reads a config file and expands its Include statements.
//
// Include accepts a file, a directory (regular files in lexicographical order, hidden
// entries skipped, sub-directories recursed) or a glob. An optional second value or a
// Filter child of the block form restricts the files taken from a directory:
//
//	Include "/etc/collectd.d" "*.conf"
//	<Include "/etc/collectd.d">
//	  Filter "*.conf"
//	</Include>
type Loader struct {
	*logger.Logger

	MaxDepth int
}

func NewLoader() *Loader {
	return &Loader{
		Logger:   logger.New().With(slog.String("component", "config loader")),
		MaxDepth: MaxIncludeDepth,
	}
}

// Load parses path and expands its includes.
func Load(path string) (*Item, error) { return NewLoader().Load(path) }

func (l *Loader) Load(path string) (*Item, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, &Error{File: path, Msg: err.Error()}
	}
	return l.read(path, "", 0)
}

// Expand expands the includes of an already parsed tree. Relative paths are resolved
// against dir.
func (l *Loader) Expand(root *Item, dir string) error {
	return l.expand(root, dir, 0)
}

func (l *Loader) maxDepth() int {
	if l.MaxDepth <= 0 {
		return MaxIncludeDepth
	}
	return l.MaxDepth
}

// read returns a synthetic root holding the items of every file path resolves to.
func (l *Loader) read(path, filter string, depth int) (*Item, error) {
	if depth >= l.maxDepth() {
		return nil, fmt.Errorf("%s: %w (%d)", path, errIncludeDepth, l.maxDepth())
	}

	files, err := l.resolve(path, filter)
	if err != nil {
		return nil, err
	}

	root := &Item{File: path}
	for _, file := range files {
		tree, err := ParseFile(file)
		if err != nil {
			return nil, err
		}
		if err := l.expand(tree, filepath.Dir(file), depth); err != nil {
			return nil, err
		}
		for _, c := range tree.Children {
			root.AddChild(c)
		}
	}
	return root, nil
}

func (l *Loader) resolve(path, filter string) ([]string, error) {
	fi, err := os.Stat(path)
	if err == nil {
		if !fi.IsDir() {
			return []string{path}, nil
		}
		return l.walkDir(path, filter)
	}

	if !errors.Is(err, fs.ErrNotExist) || !strings.ContainsAny(path, "*?[{") {
		return nil, &Error{File: path, Msg: err.Error()}
	}

	matches, gerr := doublestar.FilepathGlob(path)
	if gerr != nil {
		return nil, &Error{File: path, Msg: gerr.Error()}
	}
	if len(matches) == 0 {
		return nil, &Error{File: path, Msg: "no files match"}
	}
	sort.Strings(matches)

	var files []string
	for _, m := range matches {
		sub, err := l.resolve(m, filter)
		if err != nil {
			return nil, err
		}
		files = append(files, sub...)
	}
	return files, nil
}

func (l *Loader) walkDir(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{File: dir, Msg: err.Error()}
	}
	// os.ReadDir sorts by file name

	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		if e.IsDir() {
			sub, err := l.walkDir(path, filter)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		if filter != "" {
			if ok, _ := doublestar.Match(filter, name); !ok {
				continue
			}
		}
		files = append(files, path)
	}
	return files, nil
}

func (l *Loader) expand(it *Item, dir string, depth int) error {
	var children []*Item

	for _, c := range it.Children {
		if !strings.EqualFold(c.Key, "Include") {
			if err := l.expand(c, dir, depth); err != nil {
				return err
			}
			children = append(children, c)
			continue
		}

		path, filter, err := includeArgs(c)
		if err != nil {
			return err
		}
		if path, err = homedir.Expand(path); err != nil {
			return Errorf(c, "%v", err)
		}
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}

		sub, err := l.read(path, filter, depth+1)
		if errors.Is(err, errIncludeDepth) {
			l.Errorf("%s: dropping include: %v", c.Position(), err)
			continue
		}
		if err != nil {
			return err
		}
		for _, sc := range sub.Children {
			sc.Parent = it
			children = append(children, sc)
		}
	}

	it.Children = children
	return nil
}

func includeArgs(it *Item) (path, filter string, err error) {
	if len(it.Values) == 0 || len(it.Values) > 2 {
		return "", "", Errorf(it, "expected a path and an optional filter")
	}
	for _, v := range it.Values {
		if v.Type != String {
			return "", "", Errorf(it, "arguments must be strings")
		}
	}
	path = it.Values[0].String
	if len(it.Values) == 2 {
		filter = it.Values[1].String
	}
	for _, c := range it.Children {
		if !strings.EqualFold(c.Key, "Filter") {
			return "", "", Errorf(c, "unknown Include option")
		}
		if filter, err = GetString(c); err != nil {
			return "", "", err
		}
	}
	return path, filter, nil
}
