package fragment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaywantadh/fragments/internal/convert"
	"github.com/jaywantadh/fragments/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestRepo(t *testing.T) (*Repo, storage.Backend) {
	t.Helper()
	backend := storage.NewMemory()
	t.Cleanup(func() { backend.Close() })
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewRepo(backend, WithClock(clock.Now)), backend
}

func TestNewValidation(t *testing.T) {
	repo, _ := newTestRepo(t)
	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"missing owner", Params{Type: "text/plain"}, ErrValidation},
		{"missing type", Params{OwnerID: "u1"}, ErrValidation},
		{"malformed type", Params{OwnerID: "u1", Type: "text/"}, ErrValidation},
		{"unsupported type", Params{OwnerID: "u1", Type: "audio/mpeg"}, ErrUnsupportedType},
		{"negative size", Params{OwnerID: "u1", Type: "text/plain", Size: -1}, ErrValidation},
		{"updated before created", Params{
			OwnerID: "u1", Type: "text/plain",
			Created: time.Unix(100, 0), Updated: time.Unix(50, 0),
		}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.New(tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	repo, _ := newTestRepo(t)
	f, err := repo.New(Params{OwnerID: "u1", Type: "text/plain; charset=utf-8"})
	require.NoError(t, err)

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, f.Created, f.Updated)
	assert.Equal(t, time.UTC, f.Created.Location())
	assert.Equal(t, int64(0), f.Size)
	assert.Equal(t, "text/plain; charset=utf-8", f.Type)
	assert.Equal(t, "text/plain", f.MimeType())
	assert.True(t, f.IsText())

	other, err := repo.New(Params{OwnerID: "u1", Type: "text/plain"})
	require.NoError(t, err)
	assert.NotEqual(t, f.ID, other.ID)
}

func TestNewKeepsGivenValues(t *testing.T) {
	repo, _ := newTestRepo(t)
	created := time.Date(2023, 1, 1, 0, 0, 0, 123456789, time.FixedZone("x", 3600))
	f, err := repo.New(Params{OwnerID: "u1", Type: "image/png", ID: "abc", Size: 7, Created: created})
	require.NoError(t, err)
	assert.Equal(t, "abc", f.ID)
	assert.Equal(t, int64(7), f.Size)
	assert.True(t, f.Created.Equal(created.Truncate(time.Millisecond)))
	assert.Equal(t, time.UTC, f.Created.Location())
	assert.Equal(t, f.Created, f.Updated)
	assert.False(t, f.IsText())
}

func TestSaveByIDRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	f, err := repo.New(Params{OwnerID: "u1", Type: "application/json"})
	require.NoError(t, err)
	before := f.Updated
	require.NoError(t, f.Save(ctx))
	assert.True(t, f.Updated.After(before), "Save refreshes updated")

	got, err := repo.ByID(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.metadata(), got.metadata())
}

func TestByIDMissing(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.ByID(t.Context(), "u1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetDataGetData(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	f, err := repo.New(Params{OwnerID: "u1", Type: "text/plain"})
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx))

	for _, payload := range [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0, 1, 2}, 1000)} {
		updated := f.Updated
		require.NoError(t, f.SetData(ctx, payload))
		assert.Equal(t, int64(len(payload)), f.Size)
		assert.True(t, f.Updated.After(updated))

		got, err := f.Data(ctx)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		loaded, err := repo.ByID(ctx, "u1", f.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), loaded.Size)
	}
}

func TestSetDataRejectsNil(t *testing.T) {
	repo, _ := newTestRepo(t)
	f, err := repo.New(Params{OwnerID: "u1", Type: "text/plain"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.SetData(t.Context(), nil), ErrInvalidData)
}

func TestDataBeforeWrite(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	f, err := repo.New(Params{OwnerID: "u1", Type: "text/plain"})
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx))
	_, err = f.Data(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplace(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	f, err := repo.Create(ctx, Params{OwnerID: "u1", Type: "text/plain"}, []byte("one"))
	require.NoError(t, err)

	require.NoError(t, f.Replace(ctx, "text/plain; charset=utf-8", []byte("second")))
	assert.Equal(t, int64(6), f.Size)
	assert.Equal(t, "text/plain; charset=utf-8", f.Type)

	assert.ErrorIs(t, f.Replace(ctx, "text/markdown", []byte("x")), ErrTypeMismatch)
	assert.ErrorIs(t, f.Replace(ctx, "video/mp4", []byte("x")), ErrUnsupportedType)

	data, err := f.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestDelete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	f, err := repo.Create(ctx, Params{OwnerID: "u1", Type: "text/plain"}, []byte("bye"))
	require.NoError(t, err)
	require.NoError(t, f.Delete(ctx))

	_, err = repo.ByID(ctx, "u1", f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Data(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, f.Delete(ctx), "deleting twice is a no-op")
}

func TestByUser(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()

	empty, err := repo.ByUser(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	js, _ := empty.MarshalJSON()
	assert.Equal(t, "[]", string(js))

	want := map[string]bool{}
	for range 3 {
		f, err := repo.Create(ctx, Params{OwnerID: "u1", Type: "text/plain"}, []byte("x"))
		require.NoError(t, err)
		want[f.ID] = true
	}
	_, err = repo.Create(ctx, Params{OwnerID: "u2", Type: "text/plain"}, []byte("y"))
	require.NoError(t, err)

	ids, err := repo.ByUser(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, ids.IDs, 3)
	for _, id := range ids.IDs {
		assert.True(t, want[id], "unexpected id %s", id)
	}

	expanded, err := repo.ByUser(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, expanded.Fragments, 3)
	for _, f := range expanded.Fragments {
		assert.Equal(t, "u1", f.OwnerID)
		assert.Equal(t, int64(1), f.Size)
	}

	_, err = repo.ByUser(ctx, "", false)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsSupportedType(t *testing.T) {
	for _, raw := range []string{
		"text/plain", "text/plain; charset=utf-8", "TEXT/MARKDOWN", "text/html",
		"text/csv", "application/json", "application/yaml", "image/png",
		"image/jpeg", "image/webp", "image/gif", "image/avif",
	} {
		ok, err := IsSupportedType(raw)
		assert.NoError(t, err, raw)
		assert.True(t, ok, raw)
	}
	for _, raw := range []string{"application/xml", "image/bmp", "text/x-c"} {
		ok, err := IsSupportedType(raw)
		assert.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
	for _, raw := range []string{"", "text", "text/plain; charset"} {
		_, err := IsSupportedType(raw)
		assert.ErrorIs(t, err, ErrValidation, raw)
	}
}

func TestFormats(t *testing.T) {
	repo, _ := newTestRepo(t)
	f, err := repo.New(Params{OwnerID: "u1", Type: "text/markdown"})
	require.NoError(t, err)
	assert.Equal(t, []string{"text/markdown", "text/html", "text/plain"}, f.Formats())

	img, err := repo.New(Params{OwnerID: "u1", Type: "image/gif"})
	require.NoError(t, err)
	assert.Len(t, img.Formats(), 5)
	assert.Contains(t, img.Formats(), "image/gif")
}

func TestConvertedIntoScenarios(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	create := func(typ, data string) *Fragment {
		f, err := repo.Create(ctx, Params{OwnerID: "u1", Type: typ}, []byte(data))
		require.NoError(t, err)
		return f
	}

	md := create("text/markdown", "# Title")
	out, typ, err := md.ConvertedInto(ctx, ".html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", typ)
	assert.Contains(t, string(out), "<h1>Title</h1>")
	out, _, err = md.ConvertedInto(ctx, "txt")
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(out))

	js := create("application/json", `{"a":1}`)
	out, typ, err = js.ConvertedInto(ctx, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "application/yaml", typ)
	assert.Equal(t, "a: 1\n", string(out))

	csv := create("text/csv", "name\nAlice")
	out, _, err = csv.ConvertedInto(ctx, "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Alice"}]`, string(out))

	same, _, err := csv.ConvertedInto(ctx, "csv")
	require.NoError(t, err)
	assert.Equal(t, "name\nAlice", string(same))

	_, _, err = md.ConvertedInto(ctx, "png")
	assert.ErrorIs(t, err, convert.ErrConversionNotSupported)
	_, _, err = md.ConvertedInto(ctx, "exe")
	assert.ErrorIs(t, err, convert.ErrUnknownExtension)
}

func TestConvertedIntoImage(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := t.Context()
	src := image.NewRGBA(image.Rect(0, 0, 12, 7))
	for x := range 12 {
		for y := range 7 {
			src.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	f, err := repo.Create(ctx, Params{OwnerID: "u1", Type: "image/png"}, buf.Bytes())
	require.NoError(t, err)

	out, typ, err := f.ConvertedInto(ctx, "jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", typ)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Width)
	assert.Equal(t, 7, cfg.Height)

	same, _, err := f.ConvertedInto(ctx, "png")
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), same)
}

func TestConvertedIntoChecksExtensionFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	f, err := repo.New(Params{OwnerID: "u1", Type: "text/plain"})
	require.NoError(t, err)
	// Never saved: a bad extension must fail before the missing data does.
	_, _, err = f.ConvertedInto(t.Context(), "html")
	assert.ErrorIs(t, err, convert.ErrConversionNotSupported)
	_, _, err = f.ConvertedInto(t.Context(), "txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingBackend struct {
	storage.Backend
}

func (failingBackend) ReadFragmentMetadata(context.Context, string, string) (storage.Metadata, error) {
	return storage.Metadata{}, storage.Unavailable("read metadata", errors.New("connection refused"))
}

func TestUnavailableIsNotNotFound(t *testing.T) {
	repo := NewRepo(failingBackend{Backend: storage.NewMemory()})
	_, err := repo.ByID(t.Context(), "u1", "x")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFragmentJSON(t *testing.T) {
	repo, _ := newTestRepo(t)
	f, err := repo.New(Params{
		OwnerID: "u1", Type: "text/plain", ID: "id1", Size: 3,
		Created: time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.UTC),
	})
	require.NoError(t, err)
	js, err := Listing{Expanded: true, Fragments: []*Fragment{f}}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{
		"id":"id1","ownerId":"u1",
		"created":"2024-01-02T03:04:05.006Z","updated":"2024-01-02T03:04:05.006Z",
		"type":"text/plain","size":3}]`, string(js))
}
