package library

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Database is a Store backed by a SQLite file. Each Save rewrites both tables
// inside a single transaction, so readers see either the old or the new state.
type Database struct {
	path     string
	db       *sql.DB
	migrated bool
}

// NewDatabase returns a store for the SQLite file at dbPath. The file is
// created on the first Save; loading a missing file yields an empty library.
func NewDatabase(dbPath string) *Database {
	return &Database{path: dbPath}
}

// Path returns the location of the SQLite file.
func (d *Database) Path() string { return d.path }

// Close closes the DB if it was opened.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	d.migrated = false
	return err
}

// connect opens the handle without touching the schema.
func (d *Database) connect() error {
	if d.db != nil {
		return nil
	}
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", d.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	d.db = db
	return nil
}

// openForWrite connects and brings the schema up to date. Only Save calls it.
func (d *Database) openForWrite() error {
	if err := d.connect(); err != nil {
		return err
	}
	if d.migrated {
		return nil
	}
	if err := applyMigrations(d.db); err != nil {
		return err
	}
	d.migrated = true
	return nil
}

func (d *Database) hasSchema() (bool, error) {
	var n int
	err := d.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name IN ('books','diary_entries')`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 2, nil
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            position INTEGER PRIMARY KEY,
            id TEXT NOT NULL UNIQUE,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            published_year INTEGER NOT NULL,
            genre TEXT NOT NULL DEFAULT '',
            memo TEXT NOT NULL DEFAULT ''
        );`,
		// No foreign key on book_id; referential rules live in the manager.
		`CREATE TABLE IF NOT EXISTS diary_entries (
            position INTEGER PRIMARY KEY,
            id TEXT NOT NULL UNIQUE,
            book_id TEXT NOT NULL,
            date TEXT NOT NULL,
            content TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_diary_entries_book ON diary_entries(book_id);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

// Load reads both tables. It never writes: a file without the library
// tables loads as an empty library.
func (d *Database) Load() (*LibraryData, error) {
	if d.db == nil {
		if _, err := os.Stat(d.path); errors.Is(err, fs.ErrNotExist) {
			return &LibraryData{}, nil
		}
	}
	if err := d.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ok, err := d.hasSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: read schema: %v", ErrPersistence, err)
	}
	if !ok {
		return &LibraryData{}, nil
	}

	books, err := d.queryBooks()
	if err != nil {
		return nil, fmt.Errorf("%w: load books: %v", ErrPersistence, err)
	}
	entries, err := d.queryDiaryEntries()
	if err != nil {
		return nil, fmt.Errorf("%w: load diary entries: %v", ErrPersistence, err)
	}
	return decodeLibrary(books, entries)
}

func (d *Database) queryBooks() ([]map[string]any, error) {
	rows, err := d.db.Query(`SELECT id,title,author,published_year,genre,memo FROM books ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows, "id", "title", "author", "published_year", "genre", "memo")
}

func (d *Database) queryDiaryEntries() ([]map[string]any, error) {
	rows, err := d.db.Query(`SELECT id,book_id,date,content FROM diary_entries ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows, "id", "book_id", "date", "content")
}

// scanRecords turns each row into a plain record keyed by keys, leaving type
// checks to the entity constructors. A NULL column becomes a nil value.
func scanRecords(rows *sql.Rows, keys ...string) ([]map[string]any, error) {
	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(keys))
		dest := make([]any, len(keys))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(keys))
		for i, key := range keys {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			rec[key] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save replaces both tables in one transaction.
func (d *Database) Save(data *LibraryData) error {
	if err := d.openForWrite(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := d.replaceAll(data); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (d *Database) replaceAll(data *LibraryData) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM diary_entries`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM books`); err != nil {
		return err
	}
	if data == nil {
		return tx.Commit()
	}

	addBookStmt, err := tx.Prepare(`INSERT INTO books(position,id,title,author,published_year,genre,memo) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer addBookStmt.Close()
	for i, b := range data.Books {
		if _, err := addBookStmt.Exec(i, b.ID, b.Title, b.Author, b.PublishedYear, b.Genre, b.Memo); err != nil {
			return fmt.Errorf("insert book %s: %w", b.ID, err)
		}
	}

	addEntryStmt, err := tx.Prepare(`INSERT INTO diary_entries(position,id,book_id,date,content) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer addEntryStmt.Close()
	for i, e := range data.DiaryEntries {
		if _, err := addEntryStmt.Exec(i, e.ID, e.BookID, e.Date.Format(DateLayout), e.Content); err != nil {
			return fmt.Errorf("insert diary entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}
