package index

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/AMS/errors"
)

// MemoryIndex is an in-process Index
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryIndex creates an empty in-process index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

func (m *MemoryIndex) Save(_ context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.NewInvalidRequestError("document has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *MemoryIndex) Get(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, errors.NewNotFoundError("indexed document %s", id)
	}
	return &doc, nil
}

func (m *MemoryIndex) IDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
