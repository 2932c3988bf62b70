package storage_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/jaywantadh/fragments/internal/storage"
	"github.com/jaywantadh/fragments/internal/storage/storagetest"
)

func TestMemoryContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return storage.NewMemory()
	})
}

func TestMemoryOrdersByID(t *testing.T) {
	m := storage.NewMemory()
	ctx := t.Context()
	for _, id := range []string{"c", "a", "b"} {
		if err := m.WriteFragmentMetadata(ctx, storage.Metadata{ID: id, OwnerID: "o"}); err != nil {
			t.Fatal(err)
		}
	}
	ids, _ := m.ListFragmentIDs(ctx, "o")
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("ids = %v, want [a b c]", ids)
	}
	metas, _ := m.ListFragments(ctx, "o")
	if metas[0].ID != "a" || metas[2].ID != "c" {
		t.Errorf("records out of order: %+v", metas)
	}
}

func TestMemoryClosed(t *testing.T) {
	m := storage.NewMemory()
	ctx := t.Context()
	if err := m.WriteFragmentMetadata(ctx, storage.Metadata{ID: "x", OwnerID: "o"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	_, err := m.ReadFragmentMetadata(ctx, "o", "x")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("read after close = %v, want ErrUnavailable", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Errorf("read after close reported not found")
	}
	if err := m.WriteFragmentData(ctx, "o", "x", []byte("a")); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("write after close = %v", err)
	}
}

func TestMemoryConcurrentWriters(t *testing.T) {
	m := storage.NewMemory()
	ctx := t.Context()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = m.WriteFragmentMetadata(ctx, storage.Metadata{ID: id, OwnerID: "o"})
			_ = m.WriteFragmentData(ctx, "o", id, []byte(id))
			_, _ = m.ListFragmentIDs(ctx, "o")
		}()
	}
	wg.Wait()
	ids, err := m.ListFragmentIDs(ctx, "o")
	if err != nil || len(ids) != 16 {
		t.Errorf("ids = %v, %v; want 16 entries", ids, err)
	}
}
