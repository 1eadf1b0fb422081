// Package registry holds the in-memory index of data set definitions.
// Both the versioned store and the deployment watcher converge on it.
package registry

import (
	"sync"

	"github.com/dashfold/dashfold/api"
)

// Listener is notified after a definition is registered or removed.
// Implementations must not call back into the registry.
type Listener interface {
	OnDataSetDefRegistered(def *api.DataSetDef, author, message string)
	OnDataSetDefRemoved(def *api.DataSetDef, author, message string)
}

// DataSetDefRegistry is the registry surface consumed by the deployment
// watcher and by API callers. The in-memory implementation below and the
// git-backed store both satisfy it.
type DataSetDefRegistry interface {
	RegisterDataSetDef(def *api.DataSetDef, author, message string) error
	RemoveDataSetDef(uuid, author, message string) (*api.DataSetDef, error)
	GetDataSetDef(uuid string) *api.DataSetDef
	ListDataSetDefs() ([]*api.DataSetDef, error)
}

// Memory is the plain in-memory registry: uuid -> definition, no I/O.
type Memory struct {
	mu        sync.RWMutex
	defs      map[string]*api.DataSetDef
	listeners []Listener
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{defs: make(map[string]*api.DataSetDef)}
}

// AddListener subscribes l to registration/removal events.
func (m *Memory) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RegisterDataSetDef indexes the definition, replacing any previous entry
// with the same uuid.
func (m *Memory) RegisterDataSetDef(def *api.DataSetDef, author, message string) error {
	m.mu.Lock()
	m.defs[def.UUID] = def
	ls := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range ls {
		l.OnDataSetDefRegistered(def, author, message)
	}
	return nil
}

// RemoveDataSetDef drops the definition from the index. Returns the removed
// definition, or nil if the uuid was not registered.
func (m *Memory) RemoveDataSetDef(uuid, author, message string) (*api.DataSetDef, error) {
	m.mu.Lock()
	def, ok := m.defs[uuid]
	if ok {
		delete(m.defs, uuid)
	}
	ls := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	for _, l := range ls {
		l.OnDataSetDefRemoved(def, author, message)
	}
	return def, nil
}

// GetDataSetDef returns the definition for uuid, or nil.
func (m *Memory) GetDataSetDef(uuid string) *api.DataSetDef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defs[uuid]
}

// ListDataSetDefs returns all registered definitions, in no particular order.
func (m *Memory) ListDataSetDefs() ([]*api.DataSetDef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*api.DataSetDef, 0, len(m.defs))
	for _, def := range m.defs {
		out = append(out, def)
	}
	return out, nil
}

// Seed indexes a definition without firing listeners. Used when rebuilding
// the registry from the versioned store on startup.
func (m *Memory) Seed(def *api.DataSetDef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.UUID] = def
}
