// Package bptreestore is a persistent, page-based B+ tree store mapping
// uint32 keys to uint32 values, backed by a single memory-mapped file.
package bptreestore

import (
	"fmt"

	"github.com/oda/bptreestore/internal/dberr"
	"github.com/oda/bptreestore/internal/pager"
	"github.com/oda/bptreestore/internal/tree"
)

// Kind classifies why a Store operation failed: Configuration, IO,
// Corruption, or Misuse. Re-exported from the internal error package
// so callers can `errors.As` against a single public error type.
type Kind = dberr.Kind

const (
	Configuration = dberr.KindConfiguration
	IO            = dberr.KindIO
	Corruption    = dberr.KindCorruption
	Misuse        = dberr.KindMisuse
)

// Error is returned by every Store operation that can fail.
type Error = dberr.Error

// minDegree is the smallest accepted fan-out: below this a node could
// never hold enough keys to satisfy the min-keys invariant.
const minDegree = 4

// Store is a persistent B+ tree mapping uint32 keys to uint32 values.
// It is not safe for concurrent use, nor for sharing its backing file
// between more than one open Store.
type Store struct {
	pager *pager.Pager
	tree  *tree.Tree
}

// Open opens or creates the tree file at path. If the file already
// holds a valid metadata header its stored degree is honored and the
// degree argument is ignored; otherwise a fresh store is created with
// degree, which must be at least 4.
func Open(path string, degree uint16) (*Store, error) {
	if degree < minDegree {
		return nil, dberr.New(dberr.KindConfiguration, "degree %d is below the minimum of %d", degree, minDegree)
	}

	p, err := pager.Open(path, degree)
	if err != nil {
		return nil, fmt.Errorf("bptreestore: opening %s: %w", path, err)
	}

	return &Store{pager: p, tree: tree.New(p)}, nil
}

// Find looks up key, reporting its value if present.
func (s *Store) Find(key uint32) (value uint32, ok bool, err error) {
	value, ok, err = s.tree.Find(key)
	if err != nil {
		return 0, false, fmt.Errorf("bptreestore: find(%d): %w", key, err)
	}
	return value, ok, nil
}

// Insert stores key/value. Duplicate keys are silently ignored: the
// tree keeps whichever value was inserted first.
func (s *Store) Insert(key, value uint32) error {
	if _, err := s.tree.Insert(key, value); err != nil {
		return fmt.Errorf("bptreestore: insert(%d,%d): %w", key, value, err)
	}
	return nil
}

// Delete removes key, reporting its prior value if it was present.
func (s *Store) Delete(key uint32) (removed uint32, ok bool, err error) {
	removed, ok, err = s.tree.Delete(key)
	if err != nil {
		return 0, false, fmt.Errorf("bptreestore: delete(%d): %w", key, err)
	}
	return removed, ok, nil
}

// Flush is an explicit best-effort durability checkpoint, distinct
// from Close, for callers that want to sync mid-session.
func (s *Store) Flush() error {
	if err := s.pager.Flush(); err != nil {
		return fmt.Errorf("bptreestore: flush: %w", err)
	}
	return nil
}

// Close syncs and unmaps the backing file.
func (s *Store) Close() error {
	if err := s.pager.Close(); err != nil {
		return fmt.Errorf("bptreestore: close: %w", err)
	}
	return nil
}
