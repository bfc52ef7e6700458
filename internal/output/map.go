package output

import (
	"sync"
)

// Entry guards one output's state. Hold the lock while reading or changing State.
type Entry struct {
	sync.Mutex
	State *State
}

type keyKind int

const (
	byName keyKind = iota
	bySurface
	byOutput
)

// Key selects an output by one of its identities.
type Key struct {
	kind keyKind
	name string
	id   uint32
}

func ByName(name string) Key {
	return Key{kind: byName, name: name}
}

// BySurface selects the output whose layer surface has the given protocol id.
func BySurface(id uint32) Key {
	return Key{kind: bySurface, id: id}
}

// ByOutputID selects the output by its wl_output global name.
func ByOutputID(id uint32) Key {
	return Key{kind: byOutput, id: id}
}

// Map stores entries in insertion order with an index per key kind. Removal
// compacts the slice and rebuilds every index, which is linear in the number of
// outputs.
type Map struct {
	mu        sync.RWMutex
	entries   []*Entry
	names     map[string]int
	surfaces  map[uint32]int
	outputIDs map[uint32]int
}

func NewMap() *Map {
	return &Map{
		names:     make(map[string]int),
		surfaces:  make(map[uint32]int),
		outputIDs: make(map[uint32]int),
	}
}

// Insert adds state and returns its entry. An output with the same name is replaced.
func (m *Map) Insert(state *State) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &Entry{State: state}
	if i, ok := m.names[state.Name]; ok {
		m.entries[i] = e
		m.rebuild()
		return e
	}

	m.entries = append(m.entries, e)
	m.index(len(m.entries)-1, state)
	return e
}

func (m *Map) index(i int, s *State) {
	m.names[s.Name] = i
	if s.SurfaceID != 0 {
		m.surfaces[s.SurfaceID] = i
	}
	if s.OutputID != 0 {
		m.outputIDs[s.OutputID] = i
	}
}

func (m *Map) rebuild() {
	clear(m.names)
	clear(m.surfaces)
	clear(m.outputIDs)
	for i, e := range m.entries {
		m.index(i, e.State)
	}
}

// Reindex refreshes the indices after an entry's ids changed, for example once its
// surface is created.
func (m *Map) Reindex() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebuild()
}

func (m *Map) lookup(k Key) (int, bool) {
	var (
		i  int
		ok bool
	)
	switch k.kind {
	case byName:
		i, ok = m.names[k.name]
	case bySurface:
		i, ok = m.surfaces[k.id]
	case byOutput:
		i, ok = m.outputIDs[k.id]
	}
	return i, ok
}

func (m *Map) Get(k Key) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.lookup(k)
	if !ok {
		return nil, false
	}
	return m.entries[i], true
}

// Remove deletes the entry selected by k and returns it.
func (m *Map) Remove(k Key) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.lookup(k)
	if !ok {
		return nil, false
	}
	e := m.entries[i]
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	m.rebuild()
	return e, true
}

// Each calls fn for a snapshot of the entries in insertion order.
func (m *Map) Each(fn func(*Entry)) {
	m.mu.RLock()
	entries := append([]*Entry(nil), m.entries...)
	m.mu.RUnlock()

	for _, e := range entries {
		fn(e)
	}
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Map) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		names = append(names, e.State.Name)
	}
	return names
}
