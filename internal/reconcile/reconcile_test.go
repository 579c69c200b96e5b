package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/telesync/internal/compare"
	"github.com/maloquacious/telesync/internal/discover"
	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/store"
	"github.com/maloquacious/telesync/internal/store/sqlite"
	"github.com/maloquacious/telesync/internal/store/storetest"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	dir  string
	json string
	db   string
}

func newFixture(t *testing.T, jsonBody string, rows fields.Set) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:  dir,
		json: filepath.Join(dir, store.StorageJSONFile),
		db:   filepath.Join(dir, store.StateDBFile),
	}
	require.NoError(t, os.WriteFile(f.json, []byte(jsonBody), 0o644))

	storetest.StateDB(t, dir, nil)
	s := sqlite.New(f.db)
	if rows.Len() > 0 {
		require.NoError(t, s.Upsert(context.Background(), rows))
	}
	return f
}

func read(t *testing.T, path string) fields.Set {
	t.Helper()
	set, err := Open(path).Read(context.Background(), fields.All)
	require.NoError(t, err)
	return set
}

func TestOpen(t *testing.T) {
	assert.Equal(t, store.KindJSON, Open("/x/storage.json").Kind())
	assert.Equal(t, store.KindJSON, Open("/x/STORAGE.JSON").Kind())
	assert.Equal(t, store.KindSQLite, Open("/x/state.vscdb").Kind())
}

func TestRunReconcile(t *testing.T) {
	f := newFixture(t, `{
		"telemetry.machineId": "aaaa",
		"telemetry.devDeviceId": "dev-1",
		"telemetry.firstSessionDate": "Mon, 01 Jan 2024 00:00:00 GMT"
	}`, fields.NewSet(map[fields.Name]fields.Value{
		fields.MachineID:        fields.String("bbbb"),
		fields.FirstSessionDate: fields.String("1704067200000"),
		fields.SqmID:            fields.String("db-only"),
	}))
	groups := []Group{FromPaths("test", []string{f.json, f.db})}

	rep := Run(context.Background(), groups, Options{Lock: true, Now: fixedNow})
	require.True(t, rep.OK(), "%v", rep.Failures())
	require.Len(t, rep.Outcomes, 2)
	assert.True(t, rep.Outcomes[0].Reference)
	assert.Empty(t, rep.Outcomes[0].Changed)
	assert.Equal(t, []fields.Name{fields.MachineID, fields.DeviceID}, rep.Outcomes[1].Changed)

	db := read(t, f.db)
	v, _ := db.Get(fields.MachineID)
	assert.Equal(t, "aaaa", v.String())
	v, _ = db.Get(fields.FirstSessionDate)
	assert.Equal(t, "1704067200000", v.String(), "equivalent date left alone")
	v, _ = db.Get(fields.SqmID)
	assert.Equal(t, "db-only", v.String(), "fields missing from the reference are kept")

	check := Check(context.Background(), groups, Options{})
	require.Len(t, check.Comparisons, 1)
	assert.Equal(t, 1, check.Comparisons[0].Result.Count(compare.OnlyInSecond))
	assert.Empty(t, check.Comparisons[0].Result.Changed())
	e, ok := check.Comparisons[0].Result.Get(fields.FirstSessionDate)
	require.True(t, ok)
	assert.Equal(t, compare.TimeConsistentFormatDifferent, e.Status)
	e, ok = check.Comparisons[0].Result.Get(fields.SqmID)
	require.True(t, ok)
	assert.Equal(t, "database only", check.Comparisons[0].Labels.Describe(e))

	again := Run(context.Background(), groups, Options{Now: fixedNow})
	assert.Zero(t, again.Changed())
}

func TestRunGenerateNew(t *testing.T) {
	f := newFixture(t, `{"telemetry.machineId": "old"}`, fields.Set{})
	groups := []Group{FromPaths("test", []string{f.json, f.db})}

	rep := Run(context.Background(), groups, Options{GenerateNew: true, Backup: true, Now: fixedNow})
	require.True(t, rep.OK(), "%v", rep.Failures())
	assert.Equal(t, 2*len(fields.All), rep.Changed())
	for _, o := range rep.Outcomes {
		assert.NotEmpty(t, o.BackupPath)
		assert.FileExists(t, o.BackupPath)
	}

	js, db := read(t, f.json), read(t, f.db)
	assert.Equal(t, len(fields.All), js.Len())
	check := Check(context.Background(), groups, Options{})
	assert.True(t, check.Consistent())

	m, _ := js.Get(fields.MachineID)
	assert.NotEqual(t, "old", m.String())
	dm, _ := db.Get(fields.MachineID)
	assert.Equal(t, m.String(), dm.String())
}

func TestRunDryRunLeavesStoresAlone(t *testing.T) {
	f := newFixture(t, `{"telemetry.machineId": "aaaa"}`, fields.Set{})
	before, err := os.ReadFile(f.json)
	require.NoError(t, err)

	rep := Run(context.Background(), []Group{FromPaths("test", []string{f.json, f.db})},
		Options{DryRun: true, GenerateNew: true, Backup: true, Lock: true})
	require.True(t, rep.OK())
	assert.True(t, rep.DryRun)
	assert.Equal(t, 2*len(fields.All), rep.Changed())

	after, err := os.ReadFile(f.json)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, read(t, f.db).Len())
}

func TestRunSkipsBrokenStores(t *testing.T) {
	f := newFixture(t, `{"telemetry.machineId": "aaaa"}`, fields.Set{})
	missing := filepath.Join(f.dir, "missing", store.StateDBFile)
	corrupt := filepath.Join(f.dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{oops"), 0o644))

	rep := Run(context.Background(), []Group{FromPaths("test", []string{missing, corrupt, f.json, f.db})}, Options{})
	assert.False(t, rep.OK())
	assert.ElementsMatch(t, []string{missing, corrupt}, rep.FailedPaths())

	statuses := map[string]Status{}
	for _, o := range rep.Outcomes {
		statuses[o.Path] = o.Status
	}
	assert.Equal(t, StatusUnavailable, statuses[missing])
	assert.Equal(t, StatusCorrupt, statuses[corrupt])
	assert.Equal(t, StatusOK, statuses[f.db])

	// the unavailable store never shows up in a comparison
	check := Check(context.Background(), []Group{FromPaths("test", []string{missing, f.json, f.db})}, Options{})
	for _, c := range check.Comparisons {
		assert.NotEqual(t, missing, c.First)
		assert.NotEqual(t, missing, c.Second)
	}
	v, _ := read(t, f.db).Get(fields.MachineID)
	assert.Equal(t, "aaaa", v.String())
}

func TestRunBackupFailureIsPerStore(t *testing.T) {
	f := newFixture(t, `{}`, fields.NewSet(map[fields.Name]fields.Value{
		fields.MachineID: fields.String("aaaa"),
	}))
	// a directory where the -wal sidecar should be makes the backup copy fail
	require.NoError(t, os.Mkdir(f.json+"-wal", 0o755))

	other := newFixture(t, `{"telemetry.machineId": "cccc"}`, fields.Set{})
	groups := []Group{
		FromPaths("broken", []string{f.db, f.json}),
		FromPaths("fine", []string{other.json, other.db}),
	}

	rep := Run(context.Background(), groups, Options{Backup: true, Now: fixedNow})
	assert.Equal(t, []string{f.json}, rep.FailedPaths())
	assert.Equal(t, StatusBackupFailed, rep.Failures()[0].Status)
	assert.Equal(t, 0, read(t, f.json).Len())

	v, _ := read(t, other.db).Get(fields.MachineID)
	assert.Equal(t, "cccc", v.String())
}

// readOnlyKeyStore accepts every field but one.
type readOnlyKeyStore struct {
	reject fields.Name
	values map[fields.Name]fields.Value
}

func (s *readOnlyKeyStore) Path() string     { return "memory" }
func (s *readOnlyKeyStore) Kind() store.Kind { return store.KindSQLite }

func (s *readOnlyKeyStore) Read(_ context.Context, names []fields.Name) (fields.Set, error) {
	return fields.NewSet(s.values).Only(names), nil
}

func (s *readOnlyKeyStore) Upsert(_ context.Context, values fields.Set) error {
	werr := &store.WriteError{Path: s.Path()}
	for _, n := range values.Names() {
		if n == s.reject {
			werr.Add(n, errors.New("denied"))
			continue
		}
		s.values[n], _ = values.Get(n)
	}
	return werr.OrNil()
}

func (s *readOnlyKeyStore) Purge(context.Context, []string, []string, bool) (int, error) {
	return 0, nil
}

func TestRunReportsFieldWriteFailures(t *testing.T) {
	f := newFixture(t, `{
		"telemetry.machineId": "aaaa",
		"telemetry.sqmId": "{ABC}",
		"telemetry.devDeviceId": "dev-1"
	}`, fields.Set{})
	mem := &readOnlyKeyStore{reject: fields.SqmID, values: map[fields.Name]fields.Value{}}
	groups := []Group{{Name: "test", Stores: []store.Store{Open(f.json), mem}}}

	rep := Run(context.Background(), groups, Options{Now: fixedNow})
	assert.False(t, rep.OK())
	require.Len(t, rep.Failures(), 1)

	o := rep.Failures()[0]
	assert.Equal(t, "memory", o.Path)
	assert.Equal(t, StatusWriteFailed, o.Status)
	assert.Equal(t, []fields.Name{fields.SqmID}, o.Failed)
	assert.Equal(t, []fields.Name{fields.MachineID, fields.DeviceID}, o.Changed)
	assert.Equal(t, 2, rep.Changed())

	v, ok := mem.values[fields.MachineID]
	require.True(t, ok)
	assert.Equal(t, "aaaa", v.String())
}

func TestRunWithPurgeAndWorkspaces(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, ".config", "Code")
	global := filepath.Join(root, "User", "globalStorage")
	ws := filepath.Join(root, "User", "workspaceStorage", "abc")
	require.NoError(t, os.MkdirAll(global, 0o755))
	require.NoError(t, os.MkdirAll(ws, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(global, store.StorageJSONFile),
		[]byte(`{"telemetry.machineId": "aaaa", "example.cache": "x"}`), 0o644))

	storetest.StateDB(t, ws, nil)

	insts := discover.Find(discover.Env{GOOS: "linux", Home: home}, []string{"Code"}, nil, nil)
	require.Len(t, insts, 1)
	groups := FromInstallations(insts)
	require.Len(t, groups[0].Extra, 1)

	rep := Run(context.Background(), groups, Options{Purge: []string{"example.%"}})
	require.True(t, rep.OK(), "%v", rep.Failures())
	assert.Equal(t, 1, rep.Purged())
	require.Len(t, rep.Outcomes, 2)

	data, err := os.ReadFile(filepath.Join(global, store.StorageJSONFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "example.cache")
	assert.Contains(t, string(data), "telemetry.machineId")

	purge := Purge(context.Background(), groups, Options{DryRun: true, Purge: []string{"%"}})
	assert.True(t, purge.OK())
	assert.Len(t, purge.Outcomes, 2)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{fmt.Errorf("x: %w", store.ErrStoreUnavailable), StatusUnavailable},
		{fmt.Errorf("x: %w", store.ErrStoreCorrupt), StatusCorrupt},
		{fmt.Errorf("x: %w", store.ErrStoreLocked), StatusLocked},
		{fmt.Errorf("x: %w", store.ErrBackupFailed), StatusBackupFailed},
		{&store.WriteError{Path: "p"}, StatusWriteFailed},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), StatusTimeout},
		{errors.New("other"), StatusFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}
