package repo

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/qriscuy/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "qriscuy.db")
	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want ErrNotExist", bad, db, err)
	}
}

func TestSQLitePath(t *testing.T) {
	for in, want := range map[string]string{
		"sqlite:///./data/q.db": "./data/q.db",
		"sqlite://q.db":         "q.db",
		"q.db":                  "q.db",
		"file:q?mode=memory":    "file:q?mode=memory",
	} {
		if got := sqlitePath(in); got != want {
			t.Fatalf("sqlitePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestWithConnPragmas(t *testing.T) {
	cases := []struct{ in, want string }{
		{"q.db", "q.db?" + sqliteConnPragmas},
		{"file:x?mode=memory", "file:x?mode=memory&" + sqliteConnPragmas},
		{"q.db?_pragma=foo(1)", "q.db?_pragma=foo(1)"},
	}
	for _, tc := range cases {
		if got := withConnPragmas(tc.in); got != tc.want {
			t.Fatalf("withConnPragmas(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestOpenDatabase_SQLiteFile(t *testing.T) {
	db, err := OpenDatabase("sqlite:///" + filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragma := func(name string) string {
		var v string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&v); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		return strings.ToLower(v)
	}
	// synchronous=NORMAL reports as 1.
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		if got := pragma(name); got != want {
			t.Fatalf("PRAGMA %s = %q; want %q", name, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != sqliteMaxOpen {
		t.Fatalf("MaxOpenConnections = %d", n)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, tbl := range []any{&domain.Invoice{}, &domain.Fingerprint{}, &domain.ScanEvent{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(tbl) {
			t.Fatalf("table for %T missing", tbl)
		}
	}

	// Migrating twice is harmless, and rows survive it.
	now := time.Now().UTC()
	seedInvoice(t, db, "i1", "M1", now)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	var n int64
	db.Model(&domain.Invoice{}).Count(&n)
	if n != 1 {
		t.Fatalf("invoice count after re-migrate = %d", n)
	}
}
