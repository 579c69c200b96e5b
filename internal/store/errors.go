package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/maloquacious/telesync/internal/fields"
)

var (
	// ErrStoreUnavailable means the file is missing, a directory, or too small to hold data.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreCorrupt means the file exists but cannot be queried or parsed.
	ErrStoreCorrupt = errors.New("store corrupt")
	// ErrBackupFailed means the pre-write copy could not be made; nothing was written.
	ErrBackupFailed = errors.New("backup failed")
	// ErrStoreLocked means another writer holds the store's advisory lock.
	ErrStoreLocked = errors.New("store locked")
)

// WriteError collects the fields that could not be written to a store.
type WriteError struct {
	Path   string
	Fields map[fields.Name]error
}

func (e *WriteError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return fmt.Sprintf("write failed for %s: %s", e.Path, strings.Join(names, ", "))
}

// Add records a failure for n.
func (e *WriteError) Add(n fields.Name, err error) {
	if e.Fields == nil {
		e.Fields = make(map[fields.Name]error)
	}
	e.Fields[n] = err
}

// OrNil returns e if it holds any failures, otherwise nil.
func (e *WriteError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
