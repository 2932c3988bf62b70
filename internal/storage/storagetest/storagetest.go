// Package storagetest holds the contract suite every storage.Backend must pass.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jaywantadh/fragments/internal/storage"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

func record(owner, id, typ string, size int64) storage.Metadata {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return storage.Metadata{ID: id, OwnerID: owner, Type: typ, Size: size, Created: now, Updated: now}
}

// Run exercises the full Backend contract.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"MetadataRoundTrip", testMetadataRoundTrip},
		{"MetadataOverwrite", testMetadataOverwrite},
		{"MissingIsNotFound", testMissingIsNotFound},
		{"DataRoundTrip", testDataRoundTrip},
		{"DataIsCopied", testDataIsCopied},
		{"ListEmpty", testListEmpty},
		{"ListOwnerScoped", testListOwnerScoped},
		{"DeleteRemovesBoth", testDeleteRemovesBoth},
		{"DeleteMissingIsNoop", testDeleteMissingIsNoop},
		{"AwkwardKeys", testAwkwardKeys},
		{"CanceledContext", testCanceledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			defer b.Close()
			tt.fn(t, b)
		})
	}
}

func testMetadataRoundTrip(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	want := record("owner-1", "frag-1", "text/plain; charset=utf-8", 42)
	if err := b.WriteFragmentMetadata(ctx, want); err != nil {
		t.Fatalf("WriteFragmentMetadata: %v", err)
	}
	got, err := b.ReadFragmentMetadata(ctx, "owner-1", "frag-1")
	if err != nil {
		t.Fatalf("ReadFragmentMetadata: %v", err)
	}
	assertMetaEqual(t, got, want)
}

func testMetadataOverwrite(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	first := record("owner-1", "frag-1", "text/plain", 1)
	second := first
	second.Size = 99
	second.Updated = first.Updated.Add(time.Second)
	for _, m := range []storage.Metadata{first, second, second} {
		if err := b.WriteFragmentMetadata(ctx, m); err != nil {
			t.Fatalf("WriteFragmentMetadata: %v", err)
		}
	}
	got, err := b.ReadFragmentMetadata(ctx, "owner-1", "frag-1")
	if err != nil {
		t.Fatalf("ReadFragmentMetadata: %v", err)
	}
	assertMetaEqual(t, got, second)

	ids, err := b.ListFragmentIDs(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListFragmentIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("ids = %v, want one entry after overwrite", ids)
	}
}

func testMissingIsNotFound(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	_, err := b.ReadFragmentMetadata(ctx, "nobody", "nothing")
	if !errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("ReadFragmentMetadata error = %v, want ErrNotFound only", err)
	}
	_, err = b.ReadFragmentData(ctx, "nobody", "nothing")
	if !errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("ReadFragmentData error = %v, want ErrNotFound only", err)
	}

	// Metadata without data is a legal transient state.
	if err := b.WriteFragmentMetadata(ctx, record("owner-1", "meta-only", "text/plain", 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ReadFragmentData(ctx, "owner-1", "meta-only"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadFragmentData(meta-only) error = %v, want ErrNotFound", err)
	}
}

func testDataRoundTrip(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	payloads := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte("compressible text "), 500),
		{0x00, 0xff, 0x10, 0x80, 0x00},
	}
	for i, p := range payloads {
		id := fmt.Sprintf("frag-%d", i)
		if err := b.WriteFragmentMetadata(ctx, record("owner-1", id, "application/octet-stream", int64(len(p)))); err != nil {
			t.Fatal(err)
		}
		if err := b.WriteFragmentData(ctx, "owner-1", id, p); err != nil {
			t.Fatalf("WriteFragmentData(%d): %v", i, err)
		}
		got, err := b.ReadFragmentData(ctx, "owner-1", id)
		if err != nil {
			t.Fatalf("ReadFragmentData(%d): %v", i, err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("payload %d: got %d bytes, want %d", i, len(got), len(p))
		}
	}

	if err := b.WriteFragmentData(ctx, "owner-1", "frag-1", []byte("replaced")); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadFragmentData(ctx, "owner-1", "frag-1")
	if err != nil || string(got) != "replaced" {
		t.Errorf("after overwrite got %q, %v", got, err)
	}
}

func testDataIsCopied(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	in := []byte("original")
	if err := b.WriteFragmentMetadata(ctx, record("owner-1", "frag-1", "text/plain", 8)); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteFragmentData(ctx, "owner-1", "frag-1", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 'X'
	out, err := b.ReadFragmentData(ctx, "owner-1", "frag-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "original" {
		t.Errorf("store shares the caller's input buffer: %q", out)
	}
	out[0] = 'Y'
	again, _ := b.ReadFragmentData(ctx, "owner-1", "frag-1")
	if string(again) != "original" {
		t.Errorf("store shares its buffer with readers: %q", again)
	}
}

func testListEmpty(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	ids, err := b.ListFragmentIDs(ctx, "empty-owner")
	if err != nil {
		t.Fatalf("ListFragmentIDs: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("ids = %#v, want empty non-nil slice", ids)
	}
	metas, err := b.ListFragments(ctx, "empty-owner")
	if err != nil {
		t.Fatalf("ListFragments: %v", err)
	}
	if metas == nil || len(metas) != 0 {
		t.Errorf("metas = %#v, want empty non-nil slice", metas)
	}
}

func testListOwnerScoped(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	want := []string{"a", "b", "c"}
	for _, id := range want {
		if err := b.WriteFragmentMetadata(ctx, record("owner-1", id, "text/plain", 0)); err != nil {
			t.Fatal(err)
		}
	}
	// Owner ids that share a prefix must not bleed into each other.
	for _, owner := range []string{"owner-10", "owner-"} {
		if err := b.WriteFragmentMetadata(ctx, record(owner, "x", "text/plain", 0)); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := b.ListFragmentIDs(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListFragmentIDs: %v", err)
	}
	sort.Strings(ids)
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	metas, err := b.ListFragments(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListFragments: %v", err)
	}
	if len(metas) != len(want) {
		t.Fatalf("got %d records, want %d", len(metas), len(want))
	}
	for _, m := range metas {
		if m.OwnerID != "owner-1" {
			t.Errorf("record %s leaked from owner %q", m.ID, m.OwnerID)
		}
	}

}

func testDeleteRemovesBoth(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	if err := b.WriteFragmentMetadata(ctx, record("owner-1", "frag-1", "text/plain", 4)); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteFragmentData(ctx, "owner-1", "frag-1", []byte("data")); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteFragmentMetadata(ctx, record("owner-1", "keep", "text/plain", 0)); err != nil {
		t.Fatal(err)
	}
	if err := b.DeleteFragment(ctx, "owner-1", "frag-1"); err != nil {
		t.Fatalf("DeleteFragment: %v", err)
	}
	if _, err := b.ReadFragmentMetadata(ctx, "owner-1", "frag-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("metadata after delete: %v", err)
	}
	if _, err := b.ReadFragmentData(ctx, "owner-1", "frag-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("data after delete: %v", err)
	}
	ids, _ := b.ListFragmentIDs(ctx, "owner-1")
	if len(ids) != 1 || ids[0] != "keep" {
		t.Errorf("ids after delete = %v, want [keep]", ids)
	}
}

func testDeleteMissingIsNoop(t *testing.T, b storage.Backend) {
	if err := b.DeleteFragment(t.Context(), "nobody", "nothing"); err != nil {
		t.Errorf("DeleteFragment(missing) = %v, want nil", err)
	}
}

func testAwkwardKeys(t *testing.T, b storage.Backend) {
	ctx := t.Context()
	keys := [][2]string{
		{"a/b", "c"},
		{"a", "b/c"},
		{"own:er", "id:1"},
		{"ünïcode", "ïd with spaces"},
	}
	for i, k := range keys {
		if err := b.WriteFragmentMetadata(ctx, record(k[0], k[1], "text/plain", int64(i))); err != nil {
			t.Fatal(err)
		}
		if err := b.WriteFragmentData(ctx, k[0], k[1], []byte(k[0]+"|"+k[1])); err != nil {
			t.Fatal(err)
		}
	}
	for _, k := range keys {
		data, err := b.ReadFragmentData(ctx, k[0], k[1])
		if err != nil || string(data) != k[0]+"|"+k[1] {
			t.Errorf("ReadFragmentData(%q, %q) = %q, %v", k[0], k[1], data, err)
		}
		ids, err := b.ListFragmentIDs(ctx, k[0])
		if err != nil || len(ids) != 1 || ids[0] != k[1] {
			t.Errorf("ListFragmentIDs(%q) = %v, %v; want [%s]", k[0], ids, err, k[1])
		}
	}
}

func testCanceledContext(t *testing.T, b storage.Backend) {
	if err := b.WriteFragmentMetadata(t.Context(), record("owner-1", "frag-1", "text/plain", 2)); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteFragmentData(t.Context(), "owner-1", "frag-1", []byte("hi")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	ops := map[string]func() error{
		"write metadata": func() error {
			return b.WriteFragmentMetadata(ctx, record("owner-1", "frag-1", "text/plain", 0))
		},
		"read metadata": func() error {
			_, err := b.ReadFragmentMetadata(ctx, "owner-1", "frag-1")
			return err
		},
		"read missing metadata": func() error {
			_, err := b.ReadFragmentMetadata(ctx, "owner-1", "absent")
			return err
		},
		"write data": func() error {
			return b.WriteFragmentData(ctx, "owner-1", "frag-1", []byte("x"))
		},
		"read data": func() error {
			_, err := b.ReadFragmentData(ctx, "owner-1", "frag-1")
			return err
		},
		"list ids": func() error {
			_, err := b.ListFragmentIDs(ctx, "owner-1")
			return err
		},
		"list": func() error {
			_, err := b.ListFragments(ctx, "owner-1")
			return err
		},
		"delete": func() error {
			return b.DeleteFragment(ctx, "owner-1", "frag-1")
		},
	}
	for name, op := range ops {
		err := op()
		switch {
		case !errors.Is(err, context.Canceled):
			t.Errorf("%s with canceled context = %v, want context.Canceled", name, err)
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrUnavailable):
			t.Errorf("%s with canceled context = %v, classified as a storage failure", name, err)
		}
	}

	got, err := b.ReadFragmentData(t.Context(), "owner-1", "frag-1")
	if err != nil || !bytes.Equal(got, []byte("hi")) {
		t.Errorf("data after canceled calls = %q, %v", got, err)
	}
}

func assertMetaEqual(t *testing.T, got, want storage.Metadata) {
	t.Helper()
	if got.ID != want.ID || got.OwnerID != want.OwnerID || got.Type != want.Type || got.Size != want.Size {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
	if !got.Created.Equal(want.Created) || !got.Updated.Equal(want.Updated) {
		t.Errorf("timestamps = %v/%v, want %v/%v", got.Created, got.Updated, want.Created, want.Updated)
	}
}
