package library

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LibraryManager owns the in-memory library and writes it through to a Store
// after every mutation. It is not safe for concurrent use.
//
// Deleting a book also deletes its diary entries.
//
// When a write-through fails the in-memory change is kept and the returned
// error wraps ErrPersistence; Save retries the write.
type LibraryManager struct {
	store Store
	log   *zap.Logger
	newID func() string

	books     map[string]Book
	bookOrder []string

	entries       map[string]DiaryEntry
	entryOrder    []string
	entriesByBook map[string][]string
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithLogger sets the logger used for mutation and persistence events.
func WithLogger(l *zap.Logger) Option {
	return func(lm *LibraryManager) {
		if l != nil {
			lm.log = l
		}
	}
}

// WithIDGenerator replaces the uuid-based identifier source.
func WithIDGenerator(gen func() string) Option {
	return func(lm *LibraryManager) {
		if gen != nil {
			lm.newID = gen
		}
	}
}

// NewLibraryManager loads the library from store. A load error is returned
// unchanged and no manager is built.
func NewLibraryManager(store Store, opts ...Option) (*LibraryManager, error) {
	lm := &LibraryManager{
		store:         store,
		log:           zap.NewNop(),
		newID:         uuid.NewString,
		books:         map[string]Book{},
		entries:       map[string]DiaryEntry{},
		entriesByBook: map[string][]string{},
	}
	for _, opt := range opts {
		opt(lm)
	}

	data, err := store.Load()
	if err != nil {
		lm.log.Error("load library", zap.Error(err))
		return nil, err
	}
	for _, b := range data.Books {
		lm.insertBook(b)
	}
	for _, e := range data.DiaryEntries {
		lm.insertEntry(e)
	}
	lm.log.Info("library loaded",
		zap.Int("books", len(lm.books)),
		zap.Int("diary_entries", len(lm.entries)))
	return lm, nil
}

// Open opens the store for dataFilePath (see OpenStore) and loads it.
func Open(dataFilePath string, opts ...Option) (*LibraryManager, error) {
	store, err := OpenStore(dataFilePath)
	if err != nil {
		return nil, err
	}
	lm, err := NewLibraryManager(store, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return lm, nil
}

// Close closes the underlying store.
func (lm *LibraryManager) Close() error { return lm.store.Close() }

// ------------------ Book operations ------------------

// AddBook stores a new book and returns its id. On a persistence error the
// book is still held in memory and its id is returned with the error.
func (lm *LibraryManager) AddBook(f BookFields) (string, error) {
	id := lm.allocateID(func(id string) bool { _, ok := lm.books[id]; return ok })
	lm.insertBook(Book{
		ID:            id,
		Title:         f.Title,
		Author:        f.Author,
		PublishedYear: f.PublishedYear,
		Genre:         f.Genre,
		Memo:          f.Memo,
	})
	lm.log.Debug("book added", zap.String("book_id", id), zap.String("title", f.Title))
	return id, lm.persist("add book")
}

// AddBooks stores several books with a single write to the store and returns
// their ids in order. Persistence errors are handled as in AddBook.
func (lm *LibraryManager) AddBooks(fields []BookFields) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		id := lm.allocateID(func(id string) bool { _, ok := lm.books[id]; return ok })
		lm.insertBook(Book{
			ID:            id,
			Title:         f.Title,
			Author:        f.Author,
			PublishedYear: f.PublishedYear,
			Genre:         f.Genre,
			Memo:          f.Memo,
		})
		ids = append(ids, id)
	}
	lm.log.Debug("books added", zap.Int("count", len(ids)))
	return ids, lm.persist("add books")
}

// UpdateBook replaces the mutable fields of a book. It reports false when the
// id is unknown.
func (lm *LibraryManager) UpdateBook(id string, f BookFields) (bool, error) {
	b, ok := lm.books[id]
	if !ok {
		return false, nil
	}
	b.Title, b.Author, b.PublishedYear, b.Genre, b.Memo = f.Title, f.Author, f.PublishedYear, f.Genre, f.Memo
	lm.books[id] = b
	lm.log.Debug("book updated", zap.String("book_id", id))
	return true, lm.persist("update book")
}

// DeleteBook removes a book together with its diary entries.
func (lm *LibraryManager) DeleteBook(id string) (bool, error) {
	if _, ok := lm.books[id]; !ok {
		return false, nil
	}
	delete(lm.books, id)
	lm.bookOrder = removeID(lm.bookOrder, id)

	removed := lm.entriesByBook[id]
	for _, entryID := range removed {
		delete(lm.entries, entryID)
		lm.entryOrder = removeID(lm.entryOrder, entryID)
	}
	delete(lm.entriesByBook, id)

	lm.log.Debug("book deleted", zap.String("book_id", id), zap.Int("diary_entries_removed", len(removed)))
	return true, lm.persist("delete book")
}

// GetBook returns the book with id, if any.
func (lm *LibraryManager) GetBook(id string) (Book, bool) {
	b, ok := lm.books[id]
	return b, ok
}

// ListBooks returns all books in insertion order.
func (lm *LibraryManager) ListBooks() []Book {
	books := make([]Book, 0, len(lm.bookOrder))
	for _, id := range lm.bookOrder {
		books = append(books, lm.books[id])
	}
	return books
}

// SearchBooks matches query case-insensitively against title and author.
// A blank query returns every book.
func (lm *LibraryManager) SearchBooks(query string) []Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return lm.ListBooks()
	}
	var results []Book
	for _, b := range lm.ListBooks() {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			results = append(results, b)
		}
	}
	return results
}

// ------------------ Diary operations ------------------

// AddDiaryEntry attaches a new entry to bookID. It fails with ErrUnknownBook,
// without changing anything, when the book does not exist.
func (lm *LibraryManager) AddDiaryEntry(bookID string, date time.Time, content string) (string, error) {
	if _, ok := lm.books[bookID]; !ok {
		return "", fmt.Errorf("add diary entry: %w: %s", ErrUnknownBook, bookID)
	}
	if err := checkDate(date); err != nil {
		return "", fmt.Errorf("add diary entry: %w", err)
	}
	id := lm.allocateID(func(id string) bool { _, ok := lm.entries[id]; return ok })
	lm.insertEntry(DiaryEntry{
		ID:      id,
		BookID:  bookID,
		Date:    truncateToDate(date),
		Content: content,
	})
	lm.log.Debug("diary entry added", zap.String("entry_id", id), zap.String("book_id", bookID))
	return id, lm.persist("add diary entry")
}

// UpdateDiaryEntry replaces the date and content of an entry. The owning book
// cannot be changed.
func (lm *LibraryManager) UpdateDiaryEntry(id string, f DiaryFields) (bool, error) {
	e, ok := lm.entries[id]
	if !ok {
		return false, nil
	}
	if err := checkDate(f.Date); err != nil {
		return false, fmt.Errorf("update diary entry: %w", err)
	}
	e.Date = truncateToDate(f.Date)
	e.Content = f.Content
	lm.entries[id] = e
	lm.log.Debug("diary entry updated", zap.String("entry_id", id))
	return true, lm.persist("update diary entry")
}

// DeleteDiaryEntry removes an entry from its book.
func (lm *LibraryManager) DeleteDiaryEntry(id string) (bool, error) {
	e, ok := lm.entries[id]
	if !ok {
		return false, nil
	}
	delete(lm.entries, id)
	lm.entryOrder = removeID(lm.entryOrder, id)
	if rest := removeID(lm.entriesByBook[e.BookID], id); len(rest) > 0 {
		lm.entriesByBook[e.BookID] = rest
	} else {
		delete(lm.entriesByBook, e.BookID)
	}
	lm.log.Debug("diary entry deleted", zap.String("entry_id", id), zap.String("book_id", e.BookID))
	return true, lm.persist("delete diary entry")
}

// GetDiaryEntry looks an entry up by id across all books.
func (lm *LibraryManager) GetDiaryEntry(id string) (DiaryEntry, bool) {
	e, ok := lm.entries[id]
	return e, ok
}

// ListDiaryEntriesForBook returns the book's entries by ascending date;
// entries on the same date keep their insertion order. An unknown book has
// no entries, even when orphans were loaded for its id.
func (lm *LibraryManager) ListDiaryEntriesForBook(bookID string) []DiaryEntry {
	if _, ok := lm.books[bookID]; !ok {
		return []DiaryEntry{}
	}
	ids := lm.entriesByBook[bookID]
	entries := make([]DiaryEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, lm.entries[id])
	}
	slices.SortStableFunc(entries, func(a, b DiaryEntry) int { return a.Date.Compare(b.Date) })
	return entries
}

// SearchDiaryEntries filters the book's entries to those whose content
// contains query (case-insensitive) or whose YYYY-MM-DD date contains it.
// A blank query returns every entry of the book.
func (lm *LibraryManager) SearchDiaryEntries(bookID, query string) []DiaryEntry {
	all := lm.ListDiaryEntriesForBook(bookID)
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all
	}
	var results []DiaryEntry
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Content), q) || strings.Contains(e.Date.Format(DateLayout), q) {
			results = append(results, e)
		}
	}
	return results
}

// ------------------ Persistence ------------------

// Stats is a count of what the manager holds.
type Stats struct {
	Books        int
	DiaryEntries int
}

func (lm *LibraryManager) Stats() Stats {
	return Stats{Books: len(lm.books), DiaryEntries: len(lm.entries)}
}

// Save writes the current library to the store. Use it to retry after a
// mutation reported ErrPersistence.
func (lm *LibraryManager) Save() error { return lm.persist("save") }

// Snapshot returns a copy of the library in insertion order.
func (lm *LibraryManager) Snapshot() *LibraryData {
	data := &LibraryData{
		Books:        lm.ListBooks(),
		DiaryEntries: make([]DiaryEntry, 0, len(lm.entryOrder)),
	}
	for _, id := range lm.entryOrder {
		data.DiaryEntries = append(data.DiaryEntries, lm.entries[id])
	}
	return data
}

func (lm *LibraryManager) persist(op string) error {
	if err := lm.store.Save(lm.Snapshot()); err != nil {
		lm.log.Error("persist library", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ------------------ Internals ------------------

func (lm *LibraryManager) insertBook(b Book) {
	lm.books[b.ID] = b
	lm.bookOrder = append(lm.bookOrder, b.ID)
}

// insertEntry does not check the owning book; entries loaded for a missing
// book are kept as they are.
func (lm *LibraryManager) insertEntry(e DiaryEntry) {
	lm.entries[e.ID] = e
	lm.entryOrder = append(lm.entryOrder, e.ID)
	lm.entriesByBook[e.BookID] = append(lm.entriesByBook[e.BookID], e.ID)
}

func (lm *LibraryManager) allocateID(taken func(string) bool) string {
	for {
		if id := lm.newID(); id != "" && !taken(id) {
			return id
		}
	}
}

func removeID(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
