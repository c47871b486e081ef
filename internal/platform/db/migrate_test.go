package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_administrations.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"001_subjects.sql":        {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"README.md":               {Data: []byte("notes")},
		"seed.sql":                {Data: []byte("INSERT INTO a VALUES (1);")},
		"abc_bad.sql":             {Data: []byte("SELECT 1;")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_subjects.sql" {
		t.Errorf("unexpected first migration %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE a (id INTEGER);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[1].Version != 2 {
		t.Errorf("expected version 2, got %d", migrations[1].Version)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 2;")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestEmbeddedMigrations_MatchAcrossDialects(t *testing.T) {
	pg, err := loadMigrations(mustSub("migrations/postgres"))
	if err != nil {
		t.Fatalf("postgres migrations: %v", err)
	}
	lite, err := loadMigrations(mustSub("migrations/sqlite"))
	if err != nil {
		t.Fatalf("sqlite migrations: %v", err)
	}
	if len(pg) == 0 || len(pg) != len(lite) {
		t.Fatalf("expected matching non-empty migration sets, got %d and %d", len(pg), len(lite))
	}
	for i := range pg {
		if pg[i].Name != lite[i].Name {
			t.Errorf("migration %d: %s vs %s", i, pg[i].Name, lite[i].Name)
		}
	}
}

type fakeBackend struct {
	done   map[int]time.Time
	failOn int
	order  []int
}

func (f *fakeBackend) ensureTable(ctx context.Context) error { return nil }

func (f *fakeBackend) applied(ctx context.Context) (map[int]time.Time, error) {
	out := make(map[int]time.Time, len(f.done))
	for k, v := range f.done {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) apply(ctx context.Context, mig Migration) error {
	if mig.Version == f.failOn {
		return errors.New("syntax error")
	}
	f.done[mig.Version] = time.Now()
	f.order = append(f.order, mig.Version)
	return nil
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	backend := &fakeBackend{done: map[int]time.Time{1: time.Now()}}
	m := &Migrator{backend: backend, fsys: fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"002_b.sql": {Data: []byte("SELECT 2;")},
		"003_c.sql": {Data: []byte("SELECT 3;")},
	}}

	n, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up() error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 applied, got %d", n)
	}
	if len(backend.order) != 2 || backend.order[0] != 2 || backend.order[1] != 3 {
		t.Errorf("unexpected apply order %v", backend.order)
	}

	st, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	for _, s := range st {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("expected migration %d applied", s.Version)
		}
	}
}

func TestMigrator_UpStopsOnFailure(t *testing.T) {
	backend := &fakeBackend{done: map[int]time.Time{}, failOn: 2}
	m := &Migrator{backend: backend, fsys: fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"002_b.sql": {Data: []byte("SELECT 2;")},
		"003_c.sql": {Data: []byte("SELECT 3;")},
	}}

	n, err := m.Up(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 {
		t.Errorf("expected 1 applied before failure, got %d", n)
	}
	if _, ok := backend.done[3]; ok {
		t.Error("migration 3 should not run after a failure")
	}
}

func TestSQLiteMigrator_Up(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "vax.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer db.Close()

	m := NewSQLiteMigrator(db)
	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up() error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 migrations applied, got %d", n)
	}

	n, err = m.Up(ctx)
	if err != nil || n != 0 {
		t.Errorf("second Up() = %d, %v; want 0, nil", n, err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subjects").Scan(&count); err != nil {
		t.Fatalf("subjects table missing: %v", err)
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(st) != 2 || !st[0].Applied || !st[1].Applied {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
