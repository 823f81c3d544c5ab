// Package boltstore implements acmecore.ArtifactStore on top of BoltDB,
// grounded on kelseyhightower-kube-cert-manager/acme.go's use of
// github.com/boltdb/bolt for on-disk account persistence (see
// SPEC_FULL.md §2).
package boltstore

import (
	"fmt"

	"github.com/alvaro-octal/acmecore"
	"github.com/boltdb/bolt"
)

// Store is a BoltDB-backed acmecore.ArtifactStore. Each artifact group
// (spec.md §6, e.g. "CHALLENGES") maps to one bucket; within a bucket,
// entries are keyed by "<dir>/<filename>".
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a BoltDB file at path for use as an
// ArtifactStore.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB handle.
func (s *Store) Close() error { return s.db.Close() }

func key(dir, filename string) []byte {
	return []byte(dir + "/" + filename)
}

// Load implements acmecore.ArtifactStore.
func (s *Store) Load(group, dir, filename string, kind acmecore.ArtifactKind) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(group))
		if b == nil {
			return acmecore.ErrArtifactNotFound
		}
		v := b.Get(key(dir, filename))
		if v == nil {
			return acmecore.ErrArtifactNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Save implements acmecore.ArtifactStore.
func (s *Store) Save(group, dir, filename string, kind acmecore.ArtifactKind, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(group))
		if err != nil {
			return fmt.Errorf("boltstore: creating bucket %s: %w", group, err)
		}
		return b.Put(key(dir, filename), value)
	})
}
