package workspace

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Provider. Edits made through SetFile and RemoveFile
// are staged and only become visible from Units once Apply is called for the
// path, mirroring how an editor buffer is pushed into a project model.
type Memory struct {
	mu      sync.Mutex
	units   map[string]*memUnit
	order   []string
	staged  map[string]stagedEdit
	failing map[string]error
	version int64
}

type memUnit struct {
	name  string
	path  string
	refs  []string
	files map[string]*SourceFile
	order []string
}

type stagedEdit struct {
	unit    string
	text    string
	removed bool
}

// NewMemory returns an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{
		units:   make(map[string]*memUnit),
		staged:  make(map[string]stagedEdit),
		failing: make(map[string]error),
	}
}

// AddUnit registers a unit. Registering an existing id replaces its
// display path and references but keeps its files.
func (m *Memory) AddUnit(id, path string, references ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		u = &memUnit{name: id, files: make(map[string]*SourceFile)}
		m.units[id] = u
		m.order = append(m.order, id)
	}
	u.path = path
	u.refs = append([]string(nil), references...)
}

// PutFile adds or replaces a file immediately, without staging. Intended
// for seeding a workspace before the first build.
func (m *Memory) PutFile(unit, path, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(unit, path, text)
}

// SetFile stages new content for path in unit. It becomes visible after
// Apply(path).
func (m *Memory) SetFile(unit, path, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[path] = stagedEdit{unit: unit, text: text}
}

// RemoveFile stages the removal of path from unit.
func (m *Memory) RemoveFile(unit, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[path] = stagedEdit{unit: unit, removed: true}
}

// FailApply makes every Apply of path fail with err. A nil err clears it.
func (m *Memory) FailApply(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, path)
		return
	}
	m.failing[path] = err
}

// Units returns copies of the registered units in registration order.
func (m *Memory) Units(_ context.Context) ([]*Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	units := make([]*Unit, 0, len(m.order))
	for _, id := range m.order {
		u := m.units[id]
		out := &Unit{
			ID:         id,
			Name:       u.name,
			Path:       u.path,
			References: append([]string(nil), u.refs...),
		}
		for _, p := range u.order {
			f := *u.files[p]
			out.Files = append(out.Files, &f)
		}
		units = append(units, out)
	}
	return units, nil
}

// Apply publishes the staged edit for path, if any.
func (m *Memory) Apply(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	edit, ok := m.staged[path]
	if err, failing := m.failing[path]; failing {
		unit := edit.unit
		if !ok {
			unit = m.ownerLocked(path)
		}
		return &SyncError{Unit: unit, Path: path, Err: err}
	}
	if !ok {
		return nil
	}
	delete(m.staged, path)

	if _, known := m.units[edit.unit]; !known {
		return &SyncError{Unit: edit.unit, Path: path, Err: fmt.Errorf("unknown unit")}
	}
	if edit.removed {
		u := m.units[edit.unit]
		delete(u.files, path)
		u.order = removeString(u.order, path)
		return nil
	}
	m.putLocked(edit.unit, path, edit.text)
	return nil
}

func (m *Memory) ownerLocked(path string) string {
	for _, id := range m.order {
		if _, ok := m.units[id].files[path]; ok {
			return id
		}
	}
	return ""
}

func (m *Memory) putLocked(unit, path, text string) {
	u, ok := m.units[unit]
	if !ok {
		u = &memUnit{name: unit, path: unit, files: make(map[string]*SourceFile)}
		m.units[unit] = u
		m.order = append(m.order, unit)
	}
	m.version++
	if _, exists := u.files[path]; !exists {
		u.order = append(u.order, path)
	}
	u.files[path] = &SourceFile{
		ID:       unit + ":" + path,
		Path:     path,
		Snapshot: Snapshot{Text: text, Version: m.version},
	}
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
