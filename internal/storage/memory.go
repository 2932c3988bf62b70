package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errClosed = errors.New("memory backend closed")

// Memory is a volatile in-process Backend. Values are copied on the way in
// and out so callers never share buffers with the store.
type Memory struct {
	mu     sync.RWMutex
	meta   map[string]map[string]Metadata
	data   map[string]map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		meta: make(map[string]map[string]Metadata),
		data: make(map[string]map[string][]byte),
	}
}

func (m *Memory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return Unavailable(op, errClosed)
	}
	return nil
}

// WriteFragmentMetadata stores a copy of meta.
func (m *Memory) WriteFragmentMetadata(ctx context.Context, meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "write metadata"); err != nil {
		return err
	}
	owned, ok := m.meta[meta.OwnerID]
	if !ok {
		owned = make(map[string]Metadata)
		m.meta[meta.OwnerID] = owned
	}
	owned[meta.ID] = meta
	return nil
}

// ReadFragmentMetadata returns the stored record for the key.
func (m *Memory) ReadFragmentMetadata(ctx context.Context, ownerID, id string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "read metadata"); err != nil {
		return Metadata{}, err
	}
	meta, ok := m.meta[ownerID][id]
	if !ok {
		return Metadata{}, NotFound("metadata", ownerID, id)
	}
	return meta, nil
}

// WriteFragmentData stores a copy of data.
func (m *Memory) WriteFragmentData(ctx context.Context, ownerID, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "write data"); err != nil {
		return err
	}
	owned, ok := m.data[ownerID]
	if !ok {
		owned = make(map[string][]byte)
		m.data[ownerID] = owned
	}
	owned[id] = append([]byte{}, data...)
	return nil
}

// ReadFragmentData returns a copy of the stored blob.
func (m *Memory) ReadFragmentData(ctx context.Context, ownerID, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "read data"); err != nil {
		return nil, err
	}
	data, ok := m.data[ownerID][id]
	if !ok {
		return nil, NotFound("data", ownerID, id)
	}
	return append([]byte{}, data...), nil
}

// ListFragmentIDs returns the owner's ids in ascending order.
func (m *Memory) ListFragmentIDs(ctx context.Context, ownerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "list"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.meta[ownerID]))
	for id := range m.meta[ownerID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListFragments returns the owner's records in ascending id order.
func (m *Memory) ListFragments(ctx context.Context, ownerID string) ([]Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx, "list"); err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(m.meta[ownerID]))
	for _, meta := range m.meta[ownerID] {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteFragment removes metadata and data under a single lock.
func (m *Memory) DeleteFragment(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "delete"); err != nil {
		return err
	}
	delete(m.meta[ownerID], id)
	delete(m.data[ownerID], id)
	if len(m.meta[ownerID]) == 0 {
		delete(m.meta, ownerID)
	}
	if len(m.data[ownerID]) == 0 {
		delete(m.data, ownerID)
	}
	return nil
}

// Close drops all contents. Later calls fail with ErrUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.meta = nil
	m.data = nil
	return nil
}
