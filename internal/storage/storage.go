// Package storage defines the fragment persistence contract and its
// in-process and badger-backed implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a key. It is never
	// used for I/O failures.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the backend cannot serve a request for a
	// reason unrelated to key absence. Callers may retry these.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrCorrupt is returned when a stored blob cannot be decoded, for
	// example after the encryption key changed. Retrying does not help.
	ErrCorrupt = errors.New("stored data is corrupt or unreadable")
)

// Metadata is the persisted record describing one fragment.
type Metadata struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"ownerId"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Type    string    `json:"type"`
	Size    int64     `json:"size"`
}

// Backend defines the persistence contract for fragment metadata and data.
// Metadata and data are co-addressed by (ownerID, id). Implementations must
// be safe for concurrent use and give read-your-writes consistency. A
// canceled or expired context is returned as the bare context error.
type Backend interface {
	// WriteFragmentMetadata upserts the record keyed by (meta.OwnerID, meta.ID).
	WriteFragmentMetadata(ctx context.Context, meta Metadata) error
	// ReadFragmentMetadata returns ErrNotFound when no record exists.
	ReadFragmentMetadata(ctx context.Context, ownerID, id string) (Metadata, error)
	// WriteFragmentData upserts the raw blob for the key.
	WriteFragmentData(ctx context.Context, ownerID, id string, data []byte) error
	// ReadFragmentData returns ErrNotFound when no blob exists.
	ReadFragmentData(ctx context.Context, ownerID, id string) ([]byte, error)
	// ListFragmentIDs returns the ids owned by ownerID, never nil.
	ListFragmentIDs(ctx context.Context, ownerID string) ([]string, error)
	// ListFragments returns the metadata records owned by ownerID, never nil.
	ListFragments(ctx context.Context, ownerID string) ([]Metadata, error)
	// DeleteFragment removes metadata and data together. Deleting a missing
	// key is not an error.
	DeleteFragment(ctx context.Context, ownerID, id string) error
	// Close releases the backend's resources.
	Close() error
}

// Unavailable wraps err so that it matches ErrUnavailable while keeping the
// underlying cause inspectable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Corrupt wraps err so that it matches ErrCorrupt.
func Corrupt(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCorrupt, err)
}

// NotFound builds an ErrNotFound error naming the missing key.
func NotFound(what, ownerID, id string) error {
	return fmt.Errorf("%s %s/%s: %w", what, ownerID, id, ErrNotFound)
}
