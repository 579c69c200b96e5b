package store

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/maloquacious/telesync/internal/compare"
	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/logger"
)

// Options controls how Apply and PurgeStore touch a store.
type Options struct {
	Commit bool // false is a dry run
	Backup bool // copy the store before mutating it
	Lock   bool // hold the advisory lock while mutating

	// Purge holds LIKE patterns deleted after the field write.
	Purge []string

	Now func() time.Time
	Log logger.Logger
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) log() logger.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logger.Nop
}

// Result reports what Apply or PurgeStore did, or would do, to one store.
type Result struct {
	Path       string
	Kind       Kind
	Changed    []fields.Name // fields written, or that would be written in a dry run
	Failed     map[fields.Name]error
	BackupPath string
	Purged     int // keys deleted, or that would be deleted in a dry run
	DryRun     bool
}

// Protected lists the store keys a purge must never delete.
func Protected() []string {
	return fields.Keys(fields.All)
}

// Apply writes target into s with upsert semantics. Only fields whose current
// value disagrees with target are written, so applying the same set twice is
// a no-op the second time. Session dates keep the encoding already present in
// the store. A failed backup aborts before anything is written.
func Apply(ctx context.Context, s Store, target fields.Set, opts Options) (Result, error) {
	log := opts.log()
	res := Result{Path: s.Path(), Kind: s.Kind(), DryRun: !opts.Commit}

	if opts.Commit && opts.Lock {
		unlock, err := Lock(s.Path())
		if err != nil {
			return res, err
		}
		defer unlock()
	}

	current, err := s.Read(ctx, fields.All)
	if err != nil {
		return res, err
	}
	res.Changed = compare.Compare(target, current, target.Names()).Changed()

	if !opts.Commit {
		for _, n := range res.Changed {
			old, _ := current.Get(n)
			v, _ := target.Get(n)
			log.Info("%s: would set %s: %q -> %q", s.Path(), n.Key(), old.String(), v.String())
		}
		if len(opts.Purge) > 0 {
			res.Purged, err = s.Purge(ctx, opts.Purge, Protected(), true)
			if err != nil {
				return res, err
			}
		}
		return res, nil
	}

	if len(res.Changed) == 0 && len(opts.Purge) == 0 {
		log.Debug("%s: already consistent", s.Path())
		return res, nil
	}

	if opts.Backup {
		if res.BackupPath, err = backup(s, opts); err != nil {
			return res, err
		}
	}

	if len(res.Changed) > 0 {
		writes := target.Only(res.Changed)
		for _, n := range res.Changed {
			if old, ok := current.Get(n); ok {
				v, _ := writes.Get(n)
				writes = writes.With(n, fields.Conform(n, v, old))
			}
		}
		if err := s.Upsert(ctx, writes); err != nil {
			var werr *WriteError
			if !errors.As(err, &werr) {
				return res, err
			}
			res.Failed = werr.Fields
			written := res.Changed[:0:0]
			for _, n := range res.Changed {
				if _, failed := werr.Fields[n]; !failed {
					written = append(written, n)
				}
			}
			res.Changed = written
			log.Error("%v", err)
		}
		log.Info("%s: wrote %d field(s)", s.Path(), len(res.Changed))
	}

	if len(opts.Purge) > 0 {
		n, perr := s.Purge(ctx, opts.Purge, Protected(), false)
		if perr != nil {
			return res, perr
		}
		res.Purged = n
		log.Info("%s: purged %d key(s)", s.Path(), n)
	}

	if len(res.Failed) > 0 {
		return res, &WriteError{Path: s.Path(), Fields: res.Failed}
	}
	return res, nil
}

// PurgeStore deletes keys matching patterns from s under the same lock and
// backup rules as Apply. Synchronised identity keys are never deleted.
func PurgeStore(ctx context.Context, s Store, patterns []string, opts Options) (Result, error) {
	log := opts.log()
	res := Result{Path: s.Path(), Kind: s.Kind(), DryRun: !opts.Commit}

	if opts.Commit && opts.Lock {
		unlock, err := Lock(s.Path())
		if err != nil {
			return res, err
		}
		defer unlock()
	}

	if _, err := s.Read(ctx, nil); err != nil {
		return res, err
	}
	count, err := s.Purge(ctx, patterns, Protected(), true)
	if err != nil {
		return res, err
	}
	res.Purged = count
	if !opts.Commit || count == 0 {
		log.Info("%s: %d key(s) match", s.Path(), count)
		return res, nil
	}

	if opts.Backup {
		if res.BackupPath, err = backup(s, opts); err != nil {
			return res, err
		}
	}
	if res.Purged, err = s.Purge(ctx, patterns, Protected(), false); err != nil {
		return res, err
	}
	log.Info("%s: purged %d key(s)", s.Path(), res.Purged)
	return res, nil
}

func backup(s Store, opts Options) (string, error) {
	path, size, err := Backup(s.Path(), opts.now())
	if err != nil {
		return "", err
	}
	opts.log().Info("%s: backup %s (%s)", s.Path(), path, humanize.Bytes(uint64(size)))
	return path, nil
}
