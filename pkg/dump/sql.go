package dump

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// SQLStore keeps one row per connection in a database/sql database.
// It works with PostgreSQL, MySQL and SQLite drivers. Schema:
//
//	CREATE TABLE sqmean_dumps (
//	    conn_id     BIGINT PRIMARY KEY,
//	    payload     TEXT NOT NULL,
//	    format      VARCHAR(16) NOT NULL,
//	    checksum    VARCHAR(64) NOT NULL,
//	    value_count INTEGER NOT NULL,
//	    taken_at    TIMESTAMP NOT NULL,
//	    updated_at  TIMESTAMP NOT NULL
//	);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	format    Format
	closed    atomic.Bool
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
)

// DialectFor guesses the dialect from a database/sql driver name.
func DialectFor(driver string) SQLDialect {
	switch driver {
	case "postgres", "pgx":
		return DialectPostgreSQL
	case "mysql":
		return DialectMySQL
	default:
		return DialectSQLite
	}
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*SQLStore)

// WithSQLTableName sets the table name. Default: "sqmean_dumps".
func WithSQLTableName(name string) SQLStoreOption {
	return func(s *SQLStore) {
		if name != "" {
			s.tableName = name
		}
	}
}

// WithSQLDialect sets the SQL dialect. Default: DialectSQLite.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(s *SQLStore) {
		s.dialect = dialect
	}
}

// WithSQLFormat sets the payload format. Default: FormatConcat.
func WithSQLFormat(f Format) SQLStoreOption {
	return func(s *SQLStore) {
		s.format = f
	}
}

// NewSQLStore creates a SQL-backed store. It does not create the table;
// call CreateTable for that.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{
		db:        db,
		tableName: "sqmean_dumps",
		dialect:   DialectSQLite,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put upserts the row for b.ConnID.
func (s *SQLStore) Put(ctx context.Context, b Block) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (conn_id, payload, format, checksum, value_count, taken_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (conn_id) DO UPDATE SET
				payload = EXCLUDED.payload,
				format = EXCLUDED.format,
				checksum = EXCLUDED.checksum,
				value_count = EXCLUDED.value_count,
				taken_at = EXCLUDED.taken_at,
				updated_at = EXCLUDED.updated_at
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (conn_id, payload, format, checksum, value_count, taken_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				payload = VALUES(payload),
				format = VALUES(format),
				checksum = VALUES(checksum),
				value_count = VALUES(value_count),
				taken_at = VALUES(taken_at),
				updated_at = VALUES(updated_at)
		`, s.tableName)
	default:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (conn_id, payload, format, checksum, value_count, taken_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, s.tableName)
	}

	payload := Encode(b.Values, s.format)
	takenAt := b.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		int64(b.ConnID),
		string(payload),
		s.format.String(),
		Checksum(payload),
		len(b.Values),
		takenAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return &WriteError{ConnID: b.ConnID, Op: "upsert", Err: err}
	}
	return nil
}

// SQLRow is one stored dump as read back by Load.
type SQLRow struct {
	ConnID     uint64
	Payload    string
	Format     string
	Checksum   string
	ValueCount int
}

// Load reads the row for connID. It returns ErrNotFound if there is none.
func (s *SQLStore) Load(ctx context.Context, connID uint64) (SQLRow, error) {
	if s.closed.Load() {
		return SQLRow{}, ErrStoreClosed
	}

	query := fmt.Sprintf(
		`SELECT payload, format, checksum, value_count FROM %s WHERE conn_id = %s`,
		s.tableName, s.placeholder(1),
	)

	row := SQLRow{ConnID: connID}
	err := s.db.QueryRowContext(ctx, query, int64(connID)).
		Scan(&row.Payload, &row.Format, &row.Checksum, &row.ValueCount)
	if errors.Is(err, sql.ErrNoRows) {
		return SQLRow{}, ErrNotFound
	}
	if err != nil {
		return SQLRow{}, err
	}
	return row, nil
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// CreateTable creates the dump table if it doesn't exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				conn_id BIGINT PRIMARY KEY,
				payload TEXT NOT NULL,
				format VARCHAR(16) NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				value_count INTEGER NOT NULL,
				taken_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				conn_id BIGINT UNSIGNED PRIMARY KEY,
				payload LONGTEXT NOT NULL,
				format VARCHAR(16) NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				value_count INT NOT NULL,
				taken_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)
		`, s.tableName)
	default:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				conn_id INTEGER PRIMARY KEY,
				payload TEXT NOT NULL,
				format TEXT NOT NULL,
				checksum TEXT NOT NULL,
				value_count INTEGER NOT NULL,
				taken_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)
		`, s.tableName)
	}

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Close marks the store closed.
// Note: This does not close the underlying database connection,
// as it may be shared with other components.
func (s *SQLStore) Close() error {
	s.closed.Store(true)
	return nil
}
