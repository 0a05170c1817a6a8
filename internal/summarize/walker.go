package summarize

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Listing is the result of walking a workspace.
type Listing struct {
	// Tree is the box-drawing rendering of the walked entries
	Tree string

	// Files are the discovered files, relative to the root, slash separated,
	// in tree order
	Files []string
}

type walker struct {
	root    string
	target  string
	rules   *IgnoreRules
	tree    strings.Builder
	files   []string
	visited map[string]bool
}

// Walk lists root, descending only into directories on the way to or inside
// target. Other directories get a single "..." child line when non-empty.
func Walk(root, target string, rules *IgnoreRules) (*Listing, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absTarget)
	if err != nil {
		return nil, fmt.Errorf("target directory %s: %w", target, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("target %s is not a directory", target)
	}
	if rules == nil {
		rules = NewIgnoreRules(nil)
	}

	w := &walker{
		root:    absRoot,
		target:  absTarget,
		rules:   rules,
		visited: make(map[string]bool),
	}
	w.markVisited(absRoot)
	if err := w.dir(absRoot, ""); err != nil {
		return nil, err
	}
	return &Listing{Tree: w.tree.String(), Files: w.files}, nil
}

func (w *walker) dir(dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var hidden, regular, files []string
	for _, e := range entries {
		name := e.Name()
		rel := w.rel(filepath.Join(dir, name))
		if w.rules.Match(rel) {
			continue
		}
		// Stat follows symlinks; broken links and special files are dropped.
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		switch {
		case info.IsDir() && strings.HasPrefix(name, "."):
			hidden = append(hidden, name)
		case info.IsDir():
			regular = append(regular, name)
		case info.Mode().IsRegular():
			files = append(files, name)
		}
	}
	sort.Strings(hidden)
	sort.Strings(regular)
	sort.Strings(files)

	dirCount := len(hidden) + len(regular)
	ordered := append(append(append([]string{}, hidden...), regular...), files...)
	for i, name := range ordered {
		last := i == len(ordered)-1
		connector, childPrefix := "├── ", "│   "
		if last {
			connector, childPrefix = "└── ", "    "
		}
		path := filepath.Join(dir, name)
		fmt.Fprintf(&w.tree, "%s%s%s\n", prefix, connector, name)

		if i >= dirCount {
			w.files = append(w.files, w.rel(path))
			continue
		}
		if !w.onTargetPath(path) {
			if nonEmpty(path) {
				fmt.Fprintf(&w.tree, "%s%s└── ...\n", prefix, childPrefix)
			}
			continue
		}
		if !w.markVisited(path) {
			continue
		}
		if err := w.dir(path, prefix+childPrefix); err != nil {
			log.Warn("walk_dir_failed", map[string]interface{}{"dir": w.rel(path)}, err)
		}
	}
	return nil
}

// markVisited records the canonical path of dir and reports whether it was
// new. Symlinked directories pointing back up the tree are seen twice.
func (w *walker) markVisited(dir string) bool {
	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		canonical = dir
	}
	if w.visited[canonical] {
		return false
	}
	w.visited[canonical] = true
	return true
}

func (w *walker) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// onTargetPath reports whether dir is the target, an ancestor of it, or
// inside it.
func (w *walker) onTargetPath(dir string) bool {
	return within(dir, w.target) || within(w.target, dir)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func nonEmpty(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()
	names, _ := f.Readdirnames(1)
	return len(names) > 0
}
