package storage_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jaywantadh/fragments/internal/storage"
	"github.com/jaywantadh/fragments/internal/storage/storagetest"
)

func openBadger(t *testing.T, opts storage.BadgerOptions) *storage.Badger {
	t.Helper()
	b, err := storage.OpenBadger(opts)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	return b
}

func TestBadgerContract(t *testing.T) {
	variants := map[string]storage.BadgerOptions{
		"plain":      {InMemory: true},
		"compressed": {InMemory: true, Compress: true},
		"sealed":     {InMemory: true, Compress: true, EncryptionKey: "test passphrase"},
	}
	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			storagetest.Run(t, func(t *testing.T) storage.Backend {
				return openBadger(t, opts)
			})
		})
	}
}

func TestBadgerContractOnDisk(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return openBadger(t, storage.BadgerOptions{Path: t.TempDir(), Compress: true})
	})
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()
	payload := bytes.Repeat([]byte("persist me "), 100)
	opts := storage.BadgerOptions{Path: dir, Compress: true, EncryptionKey: "k1"}

	b := openBadger(t, opts)
	if err := b.WriteFragmentMetadata(ctx, storage.Metadata{ID: "f", OwnerID: "o", Type: "text/plain", Size: int64(len(payload))}); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteFragmentData(ctx, "o", "f", payload); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b = openBadger(t, opts)
	meta, err := b.ReadFragmentMetadata(ctx, "o", "f")
	if err != nil || meta.Size != int64(len(payload)) {
		t.Fatalf("metadata after reopen = %+v, %v", meta, err)
	}
	got, err := b.ReadFragmentData(ctx, "o", "f")
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("data after reopen: %d bytes, %v", len(got), err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	wrong := openBadger(t, storage.BadgerOptions{Path: dir, EncryptionKey: "k2"})
	defer wrong.Close()
	_, err = wrong.ReadFragmentData(ctx, "o", "f")
	if !errors.Is(err, storage.ErrCorrupt) || errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("read with wrong key = %v, want ErrCorrupt", err)
	}
}

func TestBadgerSealedWithoutKey(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()
	b := openBadger(t, storage.BadgerOptions{Path: dir, EncryptionKey: "secret"})
	if err := b.WriteFragmentData(ctx, "o", "f", []byte("hidden")); err != nil {
		t.Fatal(err)
	}
	b.Close()

	plain := openBadger(t, storage.BadgerOptions{Path: dir})
	defer plain.Close()
	_, err := plain.ReadFragmentData(ctx, "o", "f")
	if !errors.Is(err, storage.ErrCorrupt) || errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("sealed read without key = %v, want ErrCorrupt", err)
	}
}
