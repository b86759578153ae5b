// SPDX-License-Identifier: EPL-2.0

package document

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryLocalValues is a process-local LocalValueOracle: it holds whatever
// a block-local editor (e.g. local-var's literal, local-directory's picked
// path) has staged for a block, keyed by block id and field name. The
// frontend remains the system of record for this state in the full system
// (spec.md §4.3); this is the in-process stand-in a CLI or test uses when
// no richer frontend IPC is wired in.
type MemoryLocalValues struct {
	mu     sync.RWMutex
	values map[uuid.UUID]map[string]string
}

// NewMemoryLocalValues returns an empty oracle.
func NewMemoryLocalValues() *MemoryLocalValues {
	return &MemoryLocalValues{values: make(map[uuid.UUID]map[string]string)}
}

// Set stages a block-local value for later PassiveContext resolution.
func (m *MemoryLocalValues) Set(blockID uuid.UUID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[blockID] == nil {
		m.values[blockID] = make(map[string]string)
	}
	m.values[blockID][key] = value
}

// GetBlockLocalValue implements LocalValueOracle.
func (m *MemoryLocalValues) GetBlockLocalValue(blockID uuid.UUID, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[blockID][key]
	return v, ok
}
