package workspace

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are never descended into when discovering units and files.
var skipDirs = map[string]struct{}{
	"bin":          {},
	"obj":          {},
	"node_modules": {},
	"packages":     {},
	"TestResults":  {},
}

// sourceExt is the extension of files that belong to a unit.
const sourceExt = ".cs"

// Dir is a Provider backed by a directory tree. Every directory holding a
// *.csproj file is a unit; its source files are the .cs files beneath it
// that are not claimed by a nested unit.
type Dir struct {
	root string
	gi   *ignore.GitIgnore

	mu      sync.Mutex
	units   map[string]*dirUnit // keyed by unit directory (absolute)
	version int64
}

type dirUnit struct {
	id      string
	name    string
	project string
	refs    []string
	files   map[string]*SourceFile // keyed by absolute path
}

// OpenDir scans root and returns a Dir provider for it.
func OpenDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", root, err)
	}
	d := &Dir{root: abs, units: make(map[string]*dirUnit)}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(abs, ".gitignore")); err == nil {
		d.gi = gi
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dir) scan() error {
	units := make(map[string]*dirUnit)
	var sources []string

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := entry.Name()
		if entry.IsDir() {
			if path == d.root {
				return nil
			}
			if skippedDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.ignored(path) {
			return nil
		}
		switch {
		case strings.HasSuffix(name, ".csproj"):
			u, err := d.loadProject(path)
			if err != nil {
				return err
			}
			units[filepath.Dir(path)] = u
		case strings.HasSuffix(name, sourceExt):
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("workspace: scan %s: %w", d.root, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.units = units
	for _, path := range sources {
		u := d.ownerLocked(path)
		if u == nil {
			continue
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("workspace: read %s: %w", path, err)
		}
		d.putLocked(u, path, string(text))
	}
	return nil
}

// csproj is the subset of an MSBuild project file symcache reads.
type csproj struct {
	ItemGroups []struct {
		References []struct {
			Include  string `xml:"Include,attr"`
			HintPath string `xml:"HintPath"`
		} `xml:"Reference"`
	} `xml:"ItemGroup"`
}

func (d *Dir) loadProject(path string) (*dirUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", path, err)
	}
	var proj csproj
	if err := xml.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	rel, err := filepath.Rel(d.root, dir)
	if err != nil {
		return nil, err
	}
	u := &dirUnit{
		id:      filepath.ToSlash(rel),
		name:    strings.TrimSuffix(filepath.Base(path), ".csproj"),
		project: path,
		files:   make(map[string]*SourceFile),
	}
	for _, group := range proj.ItemGroups {
		for _, ref := range group.References {
			if ref.HintPath == "" {
				continue
			}
			hint := filepath.FromSlash(strings.ReplaceAll(ref.HintPath, `\`, "/"))
			if !filepath.IsAbs(hint) {
				hint = filepath.Join(dir, hint)
			}
			u.refs = append(u.refs, hint)
		}
	}
	return u, nil
}

func skippedDir(name string) bool {
	_, skip := skipDirs[name]
	return skip || strings.HasPrefix(name, ".")
}

// underSkippedDir reports whether any directory between the root and path
// is one scan never descends into.
func (d *Dir) underSkippedDir(path string) bool {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		if skippedDir(dir) {
			return true
		}
	}
	return false
}

func (d *Dir) ignored(path string) bool {
	if d.gi == nil {
		return false
	}
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return false
	}
	return d.gi.MatchesPath(rel)
}

// ownerLocked returns the unit with the deepest directory containing path.
func (d *Dir) ownerLocked(path string) *dirUnit {
	var best *dirUnit
	bestLen := -1
	for dir, u := range d.units {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			if len(dir) > bestLen {
				best, bestLen = u, len(dir)
			}
		}
	}
	return best
}

func (d *Dir) putLocked(u *dirUnit, path, text string) {
	d.version++
	id := path
	if rel, err := filepath.Rel(d.root, path); err == nil {
		id = filepath.ToSlash(rel)
	}
	u.files[path] = &SourceFile{
		ID:       id,
		Path:     path,
		Snapshot: Snapshot{Text: text, Version: d.version},
	}
}

// Units returns the discovered units sorted by id, each with its files
// sorted by path.
func (d *Dir) Units(_ context.Context) ([]*Unit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	units := make([]*Unit, 0, len(d.units))
	for _, u := range d.units {
		out := &Unit{
			ID:         u.id,
			Name:       u.name,
			Path:       u.project,
			References: append([]string(nil), u.refs...),
		}
		for _, f := range u.files {
			cp := *f
			out.Files = append(out.Files, &cp)
		}
		sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
		units = append(units, out)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

// Apply re-reads path, resolved against the workspace root when relative.
// Project files trigger a full rescan. Files that scan would not pick up are
// ignored, and deleted files are dropped from their unit.
func (d *Dir) Apply(_ context.Context, path string) error {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(d.root, abs)
	}
	abs = filepath.Clean(abs)
	if strings.HasSuffix(abs, ".csproj") {
		return d.scan()
	}
	if !strings.HasSuffix(abs, sourceExt) || d.underSkippedDir(abs) || d.ignored(abs) {
		return nil
	}

	d.mu.Lock()
	u := d.ownerLocked(abs)
	d.mu.Unlock()
	if u == nil {
		return nil
	}

	text, err := os.ReadFile(abs)

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		delete(u.files, abs)
		return nil
	case err != nil:
		return &SyncError{Unit: u.id, Path: abs, Err: err}
	}
	d.putLocked(u, abs, string(text))
	return nil
}
