package dump

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "dumps.db"))
	if err != nil {
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLStoreUpsert(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	store := NewSQLStore(db, WithSQLTableName("dumps"), WithSQLDialect(DialectFor("sqlite3")))
	if err := store.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if _, err := store.Load(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before Put = %v, want ErrNotFound", err)
	}

	if err := store.Put(ctx, Block{ConnID: 1, Values: []uint64{9}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, Block{ConnID: 1, Values: []uint64{4, 25}}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	row, err := store.Load(ctx, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if row.Payload != "425" || row.ValueCount != 2 || row.Format != "concat" {
		t.Errorf("row = %+v", row)
	}
	if row.Checksum != Checksum([]byte("425")) {
		t.Errorf("checksum mismatch")
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dumps").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}

	store.Close()
	if err := store.Put(ctx, Block{ConnID: 2}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Put after Close = %v", err)
	}
}

func TestDialectFor(t *testing.T) {
	if DialectFor("postgres") != DialectPostgreSQL || DialectFor("mysql") != DialectMySQL || DialectFor("sqlite3") != DialectSQLite {
		t.Error("unexpected dialect mapping")
	}
	pg := NewSQLStore(nil, WithSQLDialect(DialectPostgreSQL))
	if pg.placeholder(2) != "$2" {
		t.Errorf("placeholder = %s", pg.placeholder(2))
	}
}
