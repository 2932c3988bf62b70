// Package fragment implements the owner-scoped fragment entity on top of a
// storage.Backend and the conversion engine.
package fragment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaywantadh/fragments/internal/mediatype"
	"github.com/jaywantadh/fragments/internal/storage"
)

// SupportedTypes is the closed set of base types a fragment may have.
var SupportedTypes = mediatype.NewSet(
	mediatype.TextPlain,
	mediatype.TextMarkdown,
	mediatype.TextHTML,
	mediatype.TextCSV,
	mediatype.ApplicationJSON,
	mediatype.ApplicationYAML,
	mediatype.ImagePNG,
	mediatype.ImageJPEG,
	mediatype.ImageWebP,
	mediatype.ImageGIF,
	mediatype.ImageAVIF,
)

// IsSupportedType reports whether raw's base type is in SupportedTypes. A
// syntactically malformed value fails with ErrValidation.
func IsSupportedType(raw string) (bool, error) {
	return isSupported(SupportedTypes, raw)
}

func isSupported(types mediatype.Set, raw string) (bool, error) {
	ok, err := types.IsSupported(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return ok, nil
}

// Fragment is one stored content unit. Size and Updated change only through
// SetData and Save.
type Fragment struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"ownerId"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Type    string    `json:"type"`
	Size    int64     `json:"size"`

	repo *Repo
}

// normalizeTime is the canonical timestamp form: UTC, millisecond precision.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (f *Fragment) metadata() storage.Metadata {
	return storage.Metadata{
		ID:      f.ID,
		OwnerID: f.OwnerID,
		Created: f.Created,
		Updated: f.Updated,
		Type:    f.Type,
		Size:    f.Size,
	}
}

func (f *Fragment) touch() {
	now := normalizeTime(f.repo.now())
	if now.Before(f.Created) {
		now = f.Created
	}
	f.Updated = now
}

// MimeType is the base type without parameters.
func (f *Fragment) MimeType() string {
	base, err := mediatype.Base(f.Type)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(f.Type))
	}
	return base
}

// IsText reports whether the base type is text/*.
func (f *Fragment) IsText() bool {
	return strings.HasPrefix(f.MimeType(), "text/")
}

// Formats lists the types this fragment can be converted into, its own
// base type included.
func (f *Fragment) Formats() []string {
	return f.repo.engine.Targets(f.MimeType())
}

// Save persists the metadata and refreshes Updated.
func (f *Fragment) Save(ctx context.Context) error {
	f.touch()
	return f.repo.backend.WriteFragmentMetadata(ctx, f.metadata())
}

// SetData stores data as the fragment's content, then persists metadata with
// the new size. A nil slice is rejected; an empty one is not.
func (f *Fragment) SetData(ctx context.Context, data []byte) error {
	if data == nil {
		return ErrInvalidData
	}
	f.Size = int64(len(data))
	f.touch()
	if err := f.repo.backend.WriteFragmentData(ctx, f.OwnerID, f.ID, data); err != nil {
		return err
	}
	return f.repo.backend.WriteFragmentMetadata(ctx, f.metadata())
}

// Replace swaps in new data declared with rawType. The base type must match
// the stored one; parameters such as charset may change.
func (f *Fragment) Replace(ctx context.Context, rawType string, data []byte) error {
	mt, err := f.repo.parseType(rawType)
	if err != nil {
		return err
	}
	if mt.Base != f.MimeType() {
		return fmt.Errorf("%w: %s to %s", ErrTypeMismatch, f.MimeType(), mt.Base)
	}
	f.Type = mt.String()
	return f.SetData(ctx, data)
}

// Data returns the stored bytes.
func (f *Fragment) Data(ctx context.Context) ([]byte, error) {
	data, err := f.repo.backend.ReadFragmentData(ctx, f.OwnerID, f.ID)
	if err != nil {
		return nil, notFound(err, f.OwnerID, f.ID)
	}
	return data, nil
}

// ConvertedInto returns the data converted to the type named by ext and the
// resolved MIME type. The extension is checked before any data is read.
func (f *Fragment) ConvertedInto(ctx context.Context, ext string) ([]byte, string, error) {
	target, err := f.repo.engine.Resolve(f.MimeType(), ext)
	if err != nil {
		return nil, "", err
	}
	data, err := f.Data(ctx)
	if err != nil {
		return nil, "", err
	}
	out, err := f.repo.engine.Convert(f.MimeType(), data, target)
	if err != nil {
		return nil, "", err
	}
	return out, target, nil
}

// Delete removes metadata and data.
func (f *Fragment) Delete(ctx context.Context) error {
	return f.repo.backend.DeleteFragment(ctx, f.OwnerID, f.ID)
}
