package store

import (
	"context"

	"github.com/maloquacious/telesync/internal/fields"
)

// Kind identifies the on-disk format of a store.
type Kind int

const (
	KindSQLite Kind = iota // state.vscdb ItemTable
	KindJSON               // storage.json
)

func (k Kind) String() string {
	switch k {
	case KindSQLite:
		return "database"
	case KindJSON:
		return "config"
	}
	return "unknown"
}

// Store defines the contract every configuration store implements.
// The store's lifecycle belongs to the host application; implementations
// open the underlying file for the duration of a single call only.
type Store interface {
	// Path returns the file backing the store.
	Path() string

	// Kind returns the store format.
	Kind() Kind

	// Read returns the named fields present in the store. Absent fields are
	// omitted. Errors wrap ErrStoreUnavailable or ErrStoreCorrupt.
	Read(ctx context.Context, names []fields.Name) (fields.Set, error)

	// Upsert writes every value, inserting missing keys and overwriting
	// existing ones. Per-field failures are returned as a *WriteError after
	// the remaining fields have been attempted.
	Upsert(ctx context.Context, values fields.Set) error

	// Purge deletes keys matching any LIKE pattern, never touching keys in
	// protect. With dryRun set it only counts the matches.
	Purge(ctx context.Context, patterns []string, protect []string, dryRun bool) (int, error)
}
