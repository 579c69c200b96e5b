package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/store"
	_ "modernc.org/sqlite"
)

// MinSize is the smallest file that can hold a SQLite database page.
const MinSize = 512

// SQLiteStore implements store.Store over the ItemTable of a state.vscdb file
// using modernc.org/sqlite.
type SQLiteStore struct {
	dbPath string
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a SQLiteStore for dbPath. Nothing is opened until a call needs it.
func New(dbPath string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath}
}

func (s *SQLiteStore) Path() string     { return s.dbPath }
func (s *SQLiteStore) Kind() store.Kind { return store.KindSQLite }

// Preflight verifies the SQLite engine is usable and returns its version.
// A failure here is fatal to the whole run.
func Preflight(ctx context.Context) (string, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return "", fmt.Errorf("sqlite engine unavailable: %w", err)
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&version); err != nil {
		return "", fmt.Errorf("sqlite engine unavailable: %w", err)
	}
	return version, nil
}

// open opens the database with safe defaults. readOnly opens the file with
// mode=ro, so reads and dry runs never write the file or checkpoint its -wal.
func (s *SQLiteStore) open(ctx context.Context, readOnly bool) (*sql.DB, error) {
	if _, err := store.CheckUsable(s.dbPath, MinSize); err != nil {
		return nil, err
	}

	dsn := s.dbPath
	if readOnly {
		var err error
		if dsn, err = readOnlyDSN(s.dbPath); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", s.dbPath, store.ErrStoreUnavailable, err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", s.dbPath, err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
	}
	if readOnly {
		pragmas = append(pragmas, "PRAGMA query_only=ON")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: failed to set pragma %q: %w: %v", s.dbPath, pragma, store.ErrStoreCorrupt, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w: %v", s.dbPath, store.ErrStoreCorrupt, err)
	}
	return db, nil
}

// readOnlyDSN builds a file: URI that opens path read-only. Path characters
// that are special in a URI are escaped.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		// windows drive letter
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=ro"}
	return u.String(), nil
}

// Read looks up each field by exact key.
func (s *SQLiteStore) Read(ctx context.Context, names []fields.Name) (fields.Set, error) {
	db, err := s.open(ctx, true)
	if err != nil {
		return fields.Set{}, err
	}
	defer db.Close()

	found := make(map[fields.Name]fields.Value, len(names))
	for _, n := range names {
		var raw any
		err := db.QueryRowContext(ctx, selectValue, n.Key()).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fields.Set{}, fmt.Errorf("%s: reading %s: %w: %v", s.dbPath, n.Key(), store.ErrStoreCorrupt, err)
		}
		switch v := raw.(type) {
		case nil:
		case int64:
			found[n] = fields.Int(v)
		case []byte:
			found[n] = fields.String(string(v))
		case string:
			found[n] = fields.String(v)
		default:
			found[n] = fields.String(fmt.Sprint(v))
		}
	}
	return fields.NewSet(found), nil
}

// Upsert writes every value in one transaction. A failed statement is recorded
// against its field and the remaining fields are still attempted.
func (s *SQLiteStore) Upsert(ctx context.Context, values fields.Set) error {
	db, err := s.open(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	werr := &store.WriteError{Path: s.dbPath}
	for _, n := range values.Names() {
		v, _ := values.Get(n)
		if err := upsert(ctx, tx, n.Key(), bind(v)); err != nil {
			werr.Add(n, err)
		}
	}

	if err := tx.Commit(); err != nil {
		for _, n := range values.Names() {
			werr.Add(n, fmt.Errorf("failed to commit transaction: %w", err))
		}
	}
	return werr.OrNil()
}

// bind keeps numeric values INTEGER so a write does not change the stored type.
func bind(v fields.Value) any {
	if n, ok := v.Int(); ok && v.IsNumeric() {
		return n
	}
	return v.String()
}

func upsert(ctx context.Context, tx *sql.Tx, key string, value any) error {
	res, err := tx.ExecContext(ctx, updateValue, value, key)
	if err != nil {
		return fmt.Errorf("updating %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", key, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, insertValue, key, value); err != nil {
		return fmt.Errorf("inserting %s: %w", key, err)
	}
	return nil
}

// Purge deletes rows whose key matches any pattern in one statement.
func (s *SQLiteStore) Purge(ctx context.Context, patterns []string, protect []string, dryRun bool) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}
	db, err := s.open(ctx, dryRun)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	where, args := purgeClause(patterns, protect)
	if dryRun {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ItemTable WHERE `+where, args...).Scan(&count); err != nil {
			return 0, fmt.Errorf("%s: counting purge matches: %w", s.dbPath, err)
		}
		return count, nil
	}

	res, err := db.ExecContext(ctx, `DELETE FROM ItemTable WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: purging keys: %w", s.dbPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: purging keys: %w", s.dbPath, err)
	}
	return int(n), nil
}

// purgeClause builds a parameterized WHERE clause; values never enter the SQL text.
func purgeClause(patterns, protect []string) (string, []any) {
	args := make([]any, 0, len(patterns)+len(protect))
	likes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		likes = append(likes, "key LIKE ?")
		args = append(args, p)
	}
	where := "(" + strings.Join(likes, " OR ") + ")"
	if len(protect) > 0 {
		where += " AND key NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(protect)), ",") + ")"
		for _, k := range protect {
			args = append(args, k)
		}
	}
	return where, args
}
