package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/hyperjump/ruiji/internal/models"
)

const (
	// DriverCGO is the mattn/go-sqlite3 driver (requires CGO).
	DriverCGO = "sqlite3"
	// DriverPureGo is the modernc.org/sqlite driver.
	DriverPureGo = "sqlite"

	metaKeyDimension = "dimension"
)

// SQLiteStore implements Store using SQLite. Vectors are stored as float32 BLOBs.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	writeMu   sync.Mutex
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*sqliteOptions)

type sqliteOptions struct {
	driver string
}

// WithDriver selects the database/sql driver name (DriverCGO or DriverPureGo).
func WithDriver(name string) SQLiteOption {
	return func(o *sqliteOptions) {
		if name != "" {
			o.driver = name
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at dbPath fixed to dimension.
// Parent directories are created if they do not exist. Opening a database that was
// created with a different dimension fails with models.ErrDimensionMismatch.
func NewSQLiteStore(dbPath string, dimension int, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	o := sqliteOptions{driver: DriverCGO}
	for _, opt := range opts {
		opt(&o)
	}
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(o.driver, dbPath)
	if err != nil {
		return nil, models.BackendError("open database", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, models.BackendError("enable WAL", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, models.BackendError("initialize schema", err)
	}
	if err := checkDimension(db, dimension); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, dimension: dimension}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		id TEXT NOT NULL PRIMARY KEY,
		vector BLOB NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// checkDimension records dimension for a new database or verifies it against an existing one.
func checkDimension(db *sql.DB, dimension int) error {
	if _, err := db.Exec(
		`INSERT INTO store_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		metaKeyDimension, strconv.Itoa(dimension),
	); err != nil {
		return models.BackendError("write dimension", err)
	}
	var stored string
	if err := db.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, metaKeyDimension).Scan(&stored); err != nil {
		return models.BackendError("read dimension", err)
	}
	existing, err := strconv.Atoi(stored)
	if err != nil {
		return models.BackendError("parse dimension", err)
	}
	if existing != dimension {
		return fmt.Errorf("database created with another dimension: %w", models.NewDimensionError(existing, dimension))
	}
	return nil
}

// Dimension returns the vector length of the store.
func (s *SQLiteStore) Dimension() int {
	return s.dimension
}

// Contains reports whether id is stored.
func (s *SQLiteStore) Contains(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, models.BackendError("contains", err)
	}
	return true, nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Record, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM records WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, notFound(id)
	}
	if err != nil {
		return models.Record{}, models.BackendError("get", err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return models.Record{}, models.BackendError("decode "+id, err)
	}
	return models.Record{ID: id, Vector: vec}, nil
}

// Insert stores a new record. The primary key makes the insert conditional, so a
// concurrent insert of the same id yields models.ErrDuplicateKey rather than a second row.
func (s *SQLiteStore) Insert(ctx context.Context, id string, vec []float32) error {
	if err := validateRecord(s.dimension, id, vec); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, vector) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, encodeVector(vec),
	)
	if err != nil {
		return models.BackendError("insert", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return models.BackendError("insert", err)
	}
	if n == 0 {
		return duplicate(id)
	}
	return nil
}

// Scan streams every record from the database.
func (s *SQLiteStore) Scan(ctx context.Context) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT id, vector FROM records`)
		if err != nil {
			yield(models.Record{}, models.BackendError("scan", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id   string
				blob []byte
			)
			if err := rows.Scan(&id, &blob); err != nil {
				yield(models.Record{}, models.BackendError("scan", err))
				return
			}
			vec, err := decodeVector(blob)
			if err != nil {
				yield(models.Record{}, models.BackendError("decode "+id, err))
				return
			}
			if !yield(models.Record{ID: id, Vector: vec}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Record{}, models.BackendError("scan", err))
		}
	}
}

// Count returns the number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, models.BackendError("count", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
