package fragment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaywantadh/fragments/internal/convert"
	"github.com/jaywantadh/fragments/internal/mediatype"
	"github.com/jaywantadh/fragments/internal/storage"
)

// Repo builds fragments and loads them from a backend.
type Repo struct {
	backend storage.Backend
	types   mediatype.Set
	engine  *convert.Engine
	now     func() time.Time
	newID   func() string
}

// Option configures a Repo.
type Option func(*Repo)

// WithTypes replaces the supported type set.
func WithTypes(types mediatype.Set) Option {
	return func(r *Repo) { r.types = types }
}

// WithEngine replaces the conversion engine.
func WithEngine(e *convert.Engine) Option {
	return func(r *Repo) { r.engine = e }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithIDGenerator replaces the random id source.
func WithIDGenerator(fn func() string) Option {
	return func(r *Repo) { r.newID = fn }
}

// NewRepo returns a Repo over backend.
func NewRepo(backend storage.Backend, opts ...Option) *Repo {
	r := &Repo{
		backend: backend,
		types:   SupportedTypes,
		engine:  convert.Default,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Params are the construction inputs for a fragment. Zero values mean
// "absent".
type Params struct {
	OwnerID string
	Type    string
	Size    int64
	ID      string
	Created time.Time
	Updated time.Time
}

// IsSupportedType reports whether raw's base type is supported by this repo.
func (r *Repo) IsSupportedType(raw string) (bool, error) {
	return isSupported(r.types, raw)
}

func (r *Repo) parseType(raw string) (mediatype.MediaType, error) {
	mt, err := mediatype.Parse(raw)
	if err != nil {
		return mediatype.MediaType{}, validationf("%v", err)
	}
	if !r.types.Contains(mt.Base) {
		return mediatype.MediaType{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.Base)
	}
	return mt, nil
}

// New validates p and returns an unsaved fragment.
func (r *Repo) New(p Params) (*Fragment, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, validationf("ownerId is required")
	}
	if strings.TrimSpace(p.Type) == "" {
		return nil, validationf("type is required")
	}
	mt, err := r.parseType(p.Type)
	if err != nil {
		return nil, err
	}
	if p.Size < 0 {
		return nil, validationf("size must not be negative, got %d", p.Size)
	}

	id := p.ID
	if id == "" {
		id = r.newID()
	}
	created := p.Created
	if created.IsZero() {
		created = r.now()
	}
	created = normalizeTime(created)
	updated := created
	if !p.Updated.IsZero() {
		updated = normalizeTime(p.Updated)
	}
	if updated.Before(created) {
		return nil, validationf("updated %s is before created %s", updated.Format(time.RFC3339Nano), created.Format(time.RFC3339Nano))
	}

	return &Fragment{
		ID:      id,
		OwnerID: p.OwnerID,
		Created: created,
		Updated: updated,
		Type:    mt.String(),
		Size:    p.Size,
		repo:    r,
	}, nil
}

// Create validates p, saves the metadata and writes data.
func (r *Repo) Create(ctx context.Context, p Params, data []byte) (*Fragment, error) {
	f, err := r.New(p)
	if err != nil {
		return nil, err
	}
	if err := f.Save(ctx); err != nil {
		return nil, err
	}
	if err := f.SetData(ctx, data); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *Repo) fromMetadata(m storage.Metadata) (*Fragment, error) {
	return r.New(Params{
		OwnerID: m.OwnerID,
		Type:    m.Type,
		Size:    m.Size,
		ID:      m.ID,
		Created: m.Created,
		Updated: m.Updated,
	})
}

// ByID loads the fragment's metadata.
func (r *Repo) ByID(ctx context.Context, ownerID, id string) (*Fragment, error) {
	m, err := r.backend.ReadFragmentMetadata(ctx, ownerID, id)
	if err != nil {
		return nil, notFound(err, ownerID, id)
	}
	return r.fromMetadata(m)
}

// Listing is an owner's directory: ids, or full fragments when expanded.
type Listing struct {
	IDs       []string
	Fragments []*Fragment
	Expanded  bool
}

// Len is the number of entries.
func (l Listing) Len() int {
	if l.Expanded {
		return len(l.Fragments)
	}
	return len(l.IDs)
}

// MarshalJSON encodes the listing as a bare array.
func (l Listing) MarshalJSON() ([]byte, error) {
	if l.Expanded {
		if l.Fragments == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.Fragments)
	}
	if l.IDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.IDs)
}

// ByUser lists the owner's fragments. Only fragments owned by ownerID are
// ever returned, and an owner with none gets an empty listing.
func (r *Repo) ByUser(ctx context.Context, ownerID string, expand bool) (Listing, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Listing{}, validationf("ownerId is required")
	}
	if !expand {
		ids, err := r.backend.ListFragmentIDs(ctx, ownerID)
		if err != nil {
			return Listing{}, err
		}
		return Listing{IDs: ids}, nil
	}

	metas, err := r.backend.ListFragments(ctx, ownerID)
	if err != nil {
		return Listing{}, err
	}
	out := Listing{Expanded: true, Fragments: make([]*Fragment, 0, len(metas))}
	for _, m := range metas {
		if m.OwnerID != ownerID {
			continue
		}
		f, err := r.fromMetadata(m)
		if err != nil {
			return Listing{}, err
		}
		out.Fragments = append(out.Fragments, f)
	}
	return out, nil
}
