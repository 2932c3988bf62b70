package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/internal/encryptor"
)

// Key layout:
//
//	meta/<owner>/<id>  JSON Metadata
//	data/<owner>/<id>  blob envelope (see Codec)
//	sys/salt           encryption salt
//
// Owner and id are path-escaped so neither can contain the separator.
const (
	metaPrefix = "meta/"
	dataPrefix = "data/"
	saltKey    = "sys/salt"
)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Compress enables lz4 for compressible blobs.
	Compress bool
	// EncryptionKey, when non-empty, seals blobs at rest.
	EncryptionKey string
	Logger        logrus.FieldLogger
}

// Badger is a durable Backend on a local BadgerDB. Metadata and data live in
// one database so a delete removes both in a single transaction.
type Badger struct {
	db    *badger.DB
	codec Codec
	log   logrus.FieldLogger
}

// OpenBadger opens (or creates) a BadgerDB backend.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	dbOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, Unavailable("open badger", err)
	}

	b := &Badger{db: db, codec: Codec{Compress: opts.Compress}, log: log}
	if opts.EncryptionKey != "" {
		salt, err := b.loadSalt()
		if err != nil {
			db.Close()
			return nil, err
		}
		enc, err := encryptor.NewEncryptor(opts.EncryptionKey, salt)
		if err != nil {
			db.Close()
			return nil, err
		}
		b.codec.Encryptor = enc
	}

	log.WithFields(logrus.Fields{
		"path":      opts.Path,
		"in_memory": opts.InMemory,
		"compress":  opts.Compress,
		"encrypted": b.codec.Encryptor != nil,
	}).Debug("badger backend opened")
	return b, nil
}

// loadSalt returns the persisted salt, creating it on first use.
func (b *Badger) loadSalt() ([]byte, error) {
	var salt []byte
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(saltKey))
		if err == nil {
			salt, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		salt, err = encryptor.NewSalt()
		if err != nil {
			return err
		}
		return txn.Set([]byte(saltKey), salt)
	})
	if err != nil {
		return nil, Unavailable("load salt", err)
	}
	return salt, nil
}

func ownerPrefix(prefix, ownerID string) string {
	return prefix + url.PathEscape(ownerID) + "/"
}

func fragmentKey(prefix, ownerID, id string) []byte {
	return []byte(ownerPrefix(prefix, ownerID) + url.PathEscape(id))
}

// WriteFragmentMetadata upserts meta as JSON.
func (b *Badger) WriteFragmentMetadata(ctx context.Context, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fragmentKey(metaPrefix, meta.OwnerID, meta.ID), val)
	})
	if err != nil {
		return Unavailable("write metadata", err)
	}
	return nil
}

// ReadFragmentMetadata loads the record for the key.
func (b *Badger) ReadFragmentMetadata(ctx context.Context, ownerID, id string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fragmentKey(metaPrefix, ownerID, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Metadata{}, NotFound("metadata", ownerID, id)
	}
	if err != nil {
		return Metadata{}, Unavailable("read metadata", err)
	}
	return meta, nil
}

// WriteFragmentData encodes and upserts the blob.
func (b *Badger) WriteFragmentData(ctx context.Context, ownerID, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := b.codec.Encode(data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fragmentKey(dataPrefix, ownerID, id), blob)
	})
	if err != nil {
		return Unavailable("write data", err)
	}
	return nil
}

// ReadFragmentData loads and decodes the blob.
func (b *Badger) ReadFragmentData(ctx context.Context, ownerID, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var blob []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fragmentKey(dataPrefix, ownerID, id))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, NotFound("data", ownerID, id)
	}
	if err != nil {
		return nil, Unavailable("read data", err)
	}
	data, err := b.codec.Decode(blob)
	if err != nil {
		return nil, Corrupt("decode data", err)
	}
	return data, nil
}

// ListFragmentIDs returns the owner's ids in key order.
func (b *Badger) ListFragmentIDs(ctx context.Context, ownerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(ownerPrefix(metaPrefix, ownerID))
	ids := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := url.PathUnescape(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, Unavailable("list", err)
	}
	return ids, nil
}

// ListFragments returns the owner's records in key order.
func (b *Badger) ListFragments(ctx context.Context, ownerID string) ([]Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(ownerPrefix(metaPrefix, ownerID))
	out := []Metadata{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var meta Metadata
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, Unavailable("list", err)
	}
	return out, nil
}

// DeleteFragment removes metadata and data in one transaction.
func (b *Badger) DeleteFragment(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(fragmentKey(dataPrefix, ownerID, id)); err != nil {
			return err
		}
		return txn.Delete(fragmentKey(metaPrefix, ownerID, id))
	})
	if err != nil {
		return Unavailable("delete", err)
	}
	return nil
}

// Close closes the BadgerDB.
func (b *Badger) Close() error {
	b.log.Debug("closing badger backend")
	return b.db.Close()
}
