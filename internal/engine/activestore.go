// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"sync"

	"github.com/google/uuid"

	"runcell/pkg/document"
)

// ActiveStore holds the active context items a block contributed by
// executing (spec.md §4.3's active context, as opposed to passive context
// derived from a block's fields alone). Handlers populate it through
// ExecutionContext.SetActiveContext; the engine consults it when folding a
// later block's resolver.
type ActiveStore struct {
	mu    sync.Mutex
	items map[uuid.UUID][]document.ContextItem
}

// NewActiveStore returns an empty store.
func NewActiveStore() *ActiveStore {
	return &ActiveStore{items: make(map[uuid.UUID][]document.ContextItem)}
}

// Set replaces the active context items recorded for blockID.
func (s *ActiveStore) Set(blockID uuid.UUID, items []document.ContextItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[blockID] = items
}

// Get returns the active context items recorded for blockID, if any.
func (s *ActiveStore) Get(blockID uuid.UUID) []document.ContextItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[blockID]
}
