package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Store persists the whole LibraryData at once.
type Store interface {
	// Load returns an empty aggregate when nothing has been saved yet.
	Load() (*LibraryData, error)
	// Save replaces the previously stored aggregate.
	Save(data *LibraryData) error
	Close() error
}

// OpenStore picks a backend from the file extension: SQLite for .db, .sqlite
// and .sqlite3, a JSON document for anything else.
func OpenStore(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("data file path cannot be empty")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewDatabase(path), nil
	default:
		return NewFileStore(path), nil
	}
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// fileDocument is the on-disk shape of the JSON store.
type fileDocument struct {
	Books        []map[string]any `json:"books"`
	DiaryEntries []map[string]any `json:"diary_entries"`
}

// FileStore keeps the library in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the JSON file at path. The file is not
// touched until Load or Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the JSON file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (*LibraryData, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &LibraryData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, s.path, err)
	}
	var doc fileDocument
	if err := jsonAPI.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersistence, s.path, err)
	}
	return decodeLibrary(doc.Books, doc.DiaryEntries)
}

// Save writes to a temp file in the same directory and renames it over the
// target, so a failed write leaves the previous file as it was.
func (s *FileStore) Save(data *LibraryData) error {
	books, entries := encodeLibrary(data)
	payload, err := jsonAPI.MarshalIndent(fileDocument{Books: books, DiaryEntries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data dir: %v", ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrPersistence, err)
	}
	// After a successful rename this is a no-op.
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write temp file: %v", ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync temp file: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrPersistence, s.path, err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Shared record codec
// ---------------------------------------------------------------------------

func encodeLibrary(data *LibraryData) (books, entries []map[string]any) {
	books = []map[string]any{}
	entries = []map[string]any{}
	if data == nil {
		return books, entries
	}
	for _, b := range data.Books {
		books = append(books, b.ToPlain())
	}
	for _, e := range data.DiaryEntries {
		entries = append(entries, e.ToPlain())
	}
	return books, entries
}

// decodeLibrary rebuilds every record and rejects the whole load on the first
// malformed one or a duplicate id.
func decodeLibrary(bookRecords, entryRecords []map[string]any) (*LibraryData, error) {
	data := &LibraryData{
		Books:        make([]Book, 0, len(bookRecords)),
		DiaryEntries: make([]DiaryEntry, 0, len(entryRecords)),
	}

	seen := make(map[string]struct{}, len(bookRecords))
	for i, rec := range bookRecords {
		b, err := BookFromPlain(rec)
		if err != nil {
			return nil, fmt.Errorf("book #%d: %w", i, err)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("book #%d: %w: duplicate id %q", i, ErrMalformedRecord, b.ID)
		}
		seen[b.ID] = struct{}{}
		data.Books = append(data.Books, b)
	}

	seen = make(map[string]struct{}, len(entryRecords))
	for i, rec := range entryRecords {
		e, err := DiaryEntryFromPlain(rec)
		if err != nil {
			return nil, fmt.Errorf("diary entry #%d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("diary entry #%d: %w: duplicate id %q", i, ErrMalformedRecord, e.ID)
		}
		seen[e.ID] = struct{}{}
		data.DiaryEntries = append(data.DiaryEntries, e)
	}
	return data, nil
}
