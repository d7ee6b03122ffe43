package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"
)

func newManager(t *testing.T) (*LibraryManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book_data.json")
	mgr, err := Open(path)
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr, path
}

func reopen(t *testing.T, path string) *LibraryManager {
	t.Helper()
	mgr, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func mustAddBook(t *testing.T, mgr *LibraryManager, f BookFields) string {
	t.Helper()
	id, err := mgr.AddBook(f)
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	return id
}

func mustAddEntry(t *testing.T, mgr *LibraryManager, bookID string, date time.Time, content string) string {
	t.Helper()
	id, err := mgr.AddDiaryEntry(bookID, date, content)
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	return id
}

func entryIDs(entries []DiaryEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// failingStore lets tests make Save fail on demand.
type failingStore struct {
	saved   *LibraryData
	saves   int
	saveErr error
	loadErr error
}

func (s *failingStore) Load() (*LibraryData, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return &LibraryData{}, nil
}

func (s *failingStore) Save(data *LibraryData) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = data
	return nil
}

func (s *failingStore) Close() error { return nil }

func TestDuneScenario(t *testing.T) {
	mgr, _ := newManager(t)

	b1 := mustAddBook(t, mgr, BookFields{Title: "Dune", Author: "Herbert", PublishedYear: 1965})
	d1 := mustAddEntry(t, mgr, b1, NewDate(2024, time.January, 1), "Started reading")

	if got := entryIDs(mgr.ListDiaryEntriesForBook(b1)); !reflect.DeepEqual(got, []string{d1}) {
		t.Fatalf("entries = %v, want [%s]", got, d1)
	}

	ok, err := mgr.DeleteBook(b1)
	if err != nil || !ok {
		t.Fatalf("delete book: ok=%v err=%v", ok, err)
	}
	if got := mgr.ListDiaryEntriesForBook(b1); len(got) != 0 {
		t.Fatalf("entries after cascade = %v, want none", got)
	}
	if _, found := mgr.GetDiaryEntry(d1); found {
		t.Fatalf("diary entry %s should be deleted with its book", d1)
	}
}

func TestAddGetBook(t *testing.T) {
	mgr, _ := newManager(t)
	f := BookFields{Title: "Emma", Author: "Jane Austen", PublishedYear: 1815, Genre: "Novel", Memo: "gift"}
	id := mustAddBook(t, mgr, f)

	b, ok := mgr.GetBook(id)
	if !ok {
		t.Fatalf("book %s not found", id)
	}
	want := Book{ID: id, Title: f.Title, Author: f.Author, PublishedYear: f.PublishedYear, Genre: f.Genre, Memo: f.Memo}
	if b != want {
		t.Fatalf("got %+v want %+v", b, want)
	}
}

func TestDeleteBookTwice(t *testing.T) {
	mgr, _ := newManager(t)
	id := mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})

	if ok, err := mgr.DeleteBook(id); !ok || err != nil {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	if _, ok := mgr.GetBook(id); ok {
		t.Fatalf("book still present after delete")
	}
	if ok, err := mgr.DeleteBook(id); ok || err != nil {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
}

func TestUpdateBook(t *testing.T) {
	mgr, path := newManager(t)
	id := mustAddBook(t, mgr, BookFields{Title: "Dune", Author: "Herbert", PublishedYear: 1965})

	ok, err := mgr.UpdateBook(id, BookFields{Title: "Dune Messiah", Author: "Frank Herbert", PublishedYear: 1969, Memo: "sequel"})
	if !ok || err != nil {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if ok, err := mgr.UpdateBook("missing", BookFields{}); ok || err != nil {
		t.Fatalf("update unknown: ok=%v err=%v", ok, err)
	}

	b, _ := reopen(t, path).GetBook(id)
	if b.ID != id || b.Title != "Dune Messiah" || b.PublishedYear != 1969 || b.Memo != "sequel" {
		t.Fatalf("update not persisted: %+v", b)
	}
}

func TestListBooksInsertionOrder(t *testing.T) {
	mgr, path := newManager(t)
	var want []string
	for _, title := range []string{"C", "A", "B"} {
		want = append(want, mustAddBook(t, mgr, BookFields{Title: title, Author: "x"}))
	}
	check := func(m *LibraryManager) {
		var got []string
		for _, b := range m.ListBooks() {
			got = append(got, b.ID)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	check(mgr)
	check(reopen(t, path))
}

func TestSearchBooks(t *testing.T) {
	mgr, _ := newManager(t)
	dune := mustAddBook(t, mgr, BookFields{Title: "Dune", Author: "Frank Herbert", PublishedYear: 1965})
	emma := mustAddBook(t, mgr, BookFields{Title: "Emma", Author: "Jane Austen", PublishedYear: 1815, Genre: "dune-adjacent"})
	mustAddBook(t, mgr, BookFields{Title: "Persuasion", Author: "Jane Austen", PublishedYear: 1817})

	tests := []struct {
		query string
		want  []string
	}{
		{"dune", []string{dune}},
		{"DUNE", []string{dune}},
		{"herb", []string{dune}},
		{"emma", []string{emma}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got []string
			for _, b := range mgr.SearchBooks(tt.query) {
				got = append(got, b.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("search %q = %v, want %v", tt.query, got, tt.want)
			}
		})
	}

	if got := mgr.SearchBooks("austen"); len(got) != 2 {
		t.Fatalf("want 2 Austen books, got %d", len(got))
	}
}

func TestSearchBooksEmptyQueryListsAll(t *testing.T) {
	mgr, _ := newManager(t)
	for i := 0; i < 4; i++ {
		mustAddBook(t, mgr, BookFields{Title: fmt.Sprintf("Book %d", i), Author: "A"})
	}
	ids := func(books []Book) []string {
		var out []string
		for _, b := range books {
			out = append(out, b.ID)
		}
		sort.Strings(out)
		return out
	}
	all := ids(mgr.ListBooks())
	for _, q := range []string{"", "   "} {
		if got := ids(mgr.SearchBooks(q)); !reflect.DeepEqual(got, all) {
			t.Fatalf("search %q = %v, want %v", q, got, all)
		}
	}
}

func TestAddDiaryEntryUnknownBook(t *testing.T) {
	mgr, _ := newManager(t)
	book := mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})
	mustAddEntry(t, mgr, book, NewDate(2024, time.May, 1), "existing")
	before := mgr.Snapshot()

	id, err := mgr.AddDiaryEntry("no-such-book", NewDate(2024, time.May, 2), "lost")
	if !errors.Is(err, ErrUnknownBook) {
		t.Fatalf("want ErrUnknownBook, got %v", err)
	}
	if id != "" {
		t.Fatalf("no id should be returned, got %q", id)
	}
	if after := mgr.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("library changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestDiaryEntriesDateOrder(t *testing.T) {
	mgr, path := newManager(t)
	book := mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})

	late := mustAddEntry(t, mgr, book, NewDate(2024, time.March, 1), "late")
	sameA := mustAddEntry(t, mgr, book, NewDate(2024, time.January, 15), "same day, first")
	early := mustAddEntry(t, mgr, book, NewDate(2023, time.June, 1), "early")
	sameB := mustAddEntry(t, mgr, book, NewDate(2024, time.January, 15), "same day, second")

	want := []string{early, sameA, sameB, late}
	if got := entryIDs(mgr.ListDiaryEntriesForBook(book)); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if got := entryIDs(reopen(t, path).ListDiaryEntriesForBook(book)); !reflect.DeepEqual(got, want) {
		t.Fatalf("order after reload = %v, want %v", got, want)
	}
	if got := mgr.ListDiaryEntriesForBook("unknown"); got == nil || len(got) != 0 {
		t.Fatalf("unknown book should give an empty list, got %#v", got)
	}
}

func TestDiaryEntryDateTruncated(t *testing.T) {
	mgr, _ := newManager(t)
	book := mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})
	id := mustAddEntry(t, mgr, book, time.Date(2024, time.July, 4, 18, 30, 0, 0, time.UTC), "evening")

	e, _ := mgr.GetDiaryEntry(id)
	if !e.Date.Equal(NewDate(2024, time.July, 4)) {
		t.Fatalf("date = %v", e.Date)
	}
}

func TestUpdateAndDeleteDiaryEntry(t *testing.T) {
	mgr, path := newManager(t)
	book := mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})
	keep := mustAddEntry(t, mgr, book, NewDate(2024, time.January, 1), "one")
	drop := mustAddEntry(t, mgr, book, NewDate(2024, time.January, 2), "two")

	ok, err := mgr.UpdateDiaryEntry(keep, DiaryFields{Date: NewDate(2024, time.February, 1), Content: "one, revised"})
	if !ok || err != nil {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if ok, err := mgr.UpdateDiaryEntry("missing", DiaryFields{}); ok || err != nil {
		t.Fatalf("update unknown: ok=%v err=%v", ok, err)
	}
	if ok, err := mgr.DeleteDiaryEntry(drop); !ok || err != nil {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, err := mgr.DeleteDiaryEntry(drop); ok || err != nil {
		t.Fatalf("delete again: ok=%v err=%v", ok, err)
	}

	reloaded := reopen(t, path)
	entries := reloaded.ListDiaryEntriesForBook(book)
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	want := DiaryEntry{ID: keep, BookID: book, Date: NewDate(2024, time.February, 1), Content: "one, revised"}
	if entries[0] != want {
		t.Fatalf("got %+v want %+v", entries[0], want)
	}
	if _, ok := reloaded.GetDiaryEntry(drop); ok {
		t.Fatalf("deleted entry came back after reload")
	}
}

func TestSearchDiaryEntries(t *testing.T) {
	mgr, _ := newManager(t)
	book := mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})
	other := mustAddBook(t, mgr, BookFields{Title: "U", Author: "B"})
	jan := mustAddEntry(t, mgr, book, NewDate(2024, time.January, 1), "Started Reading")
	feb := mustAddEntry(t, mgr, book, NewDate(2024, time.February, 10), "Halfway, slow middle")
	mustAddEntry(t, mgr, other, NewDate(2024, time.January, 5), "started reading too")

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{jan, feb}},
		{"reading", []string{jan}},
		{"SLOW", []string{feb}},
		{"2024-02", []string{feb}},
		{"2024-01-01", []string{jan}},
		{"2024", []string{jan, feb}},
		{"absent", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := entryIDs(mgr.SearchDiaryEntries(book, tt.query))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("search %q = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestIDsDistinctAcrossDeletesAndReloads(t *testing.T) {
	mgr, path := newManager(t)
	seen := map[string]bool{}
	record := func(id string) {
		if seen[id] {
			t.Fatalf("id %s reused", id)
		}
		seen[id] = true
	}

	var bookID string
	for i := 0; i < 5; i++ {
		bookID = mustAddBook(t, mgr, BookFields{Title: "T", Author: "A"})
		record(bookID)
		record(mustAddEntry(t, mgr, bookID, NewDate(2024, time.January, i+1), "x"))
	}
	if _, err := mgr.DeleteBook(bookID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	again := reopen(t, path)
	for i := 0; i < 5; i++ {
		id := mustAddBook(t, again, BookFields{Title: "T2", Author: "A"})
		record(id)
		record(mustAddEntry(t, again, id, NewDate(2025, time.January, 1), "y"))
	}
}

func TestIDCollisionIsSkipped(t *testing.T) {
	ids := []string{"x", "x", "", "y"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	mgr, err := NewLibraryManager(&failingStore{}, WithIDGenerator(next))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	first := mustAddBook(t, mgr, BookFields{Title: "A"})
	second := mustAddBook(t, mgr, BookFields{Title: "B"})
	if first != "x" || second != "y" {
		t.Fatalf("ids = %q, %q; want x, y", first, second)
	}
}

func TestSaveThenLoadReproducesLibrary(t *testing.T) {
	for _, name := range []string{"lib.json", "lib.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			mgr, err := Open(path)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			a := mustAddBook(t, mgr, BookFields{Title: "Dune", Author: "Herbert", PublishedYear: 1965, Genre: "SF"})
			b := mustAddBook(t, mgr, BookFields{Title: "Emma", Author: "Austen", PublishedYear: 1815, Memo: "m"})
			mustAddEntry(t, mgr, b, NewDate(2024, time.April, 2), "second")
			mustAddEntry(t, mgr, a, NewDate(2024, time.April, 1), "first")
			want := mgr.Snapshot()
			if err := mgr.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			got := reopen(t, path).Snapshot()
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("reload mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestPersistenceFailureKeepsMemory(t *testing.T) {
	store := &failingStore{saveErr: fmt.Errorf("%w: disk full", ErrPersistence)}
	mgr, err := NewLibraryManager(store)
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}

	id, err := mgr.AddBook(BookFields{Title: "Dune", Author: "Herbert"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
	if id == "" {
		t.Fatalf("id should still be returned")
	}
	if _, ok := mgr.GetBook(id); !ok {
		t.Fatalf("book should be kept in memory")
	}

	store.saveErr = nil
	if err := mgr.Save(); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if store.saved == nil || len(store.saved.Books) != 1 || store.saved.Books[0].ID != id {
		t.Fatalf("retry did not write the book: %+v", store.saved)
	}
}

func TestLoadErrorAbortsStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.json")
	writeFile(t, path, `{"books":[{"id":"b1","author":"Herbert","published_year":1965}]}`)

	mgr, err := Open(path)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("want ErrMalformedRecord, got %v", err)
	}
	if mgr != nil {
		t.Fatalf("no manager should be returned")
	}

	_, err = NewLibraryManager(&failingStore{loadErr: ErrPersistence})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
}

func TestStats(t *testing.T) {
	mgr, _ := newManager(t)
	a := mustAddBook(t, mgr, BookFields{Title: "A"})
	mustAddBook(t, mgr, BookFields{Title: "B"})
	mustAddEntry(t, mgr, a, NewDate(2024, time.January, 1), "x")
	if got := mgr.Stats(); got != (Stats{Books: 2, DiaryEntries: 1}) {
		t.Fatalf("stats = %+v", got)
	}
}

func TestDiaryDateOutsideStorableRange(t *testing.T) {
	mgr, path := newManager(t)
	book := mustAddBook(t, mgr, BookFields{Title: "Dune", Author: "Herbert", PublishedYear: 1965})
	entry := mustAddEntry(t, mgr, book, NewDate(2024, time.January, 1), "Started")

	for _, d := range []time.Time{NewDate(10000, time.January, 1), NewDate(-1, time.March, 1)} {
		if id, err := mgr.AddDiaryEntry(book, d, "too far"); !errors.Is(err, ErrInvalidDate) || id != "" {
			t.Fatalf("add %v: id=%q err=%v", d, id, err)
		}
		if ok, err := mgr.UpdateDiaryEntry(entry, DiaryFields{Date: d, Content: "moved"}); !errors.Is(err, ErrInvalidDate) || ok {
			t.Fatalf("update %v: ok=%v err=%v", d, ok, err)
		}
	}
	if got, _ := mgr.GetDiaryEntry(entry); got.Content != "Started" || !got.Date.Equal(NewDate(2024, time.January, 1)) {
		t.Fatalf("entry changed by rejected update: %+v", got)
	}
	if st := mgr.Stats(); st.DiaryEntries != 1 {
		t.Fatalf("stats = %+v", st)
	}

	// Boundary years are storable and load back.
	last := mustAddEntry(t, mgr, book, NewDate(9999, time.December, 31), "far future")
	first := mustAddEntry(t, mgr, book, NewDate(0, time.January, 1), "far past")

	reloaded := reopen(t, path)
	for _, id := range []string{entry, last, first} {
		if _, ok := reloaded.GetDiaryEntry(id); !ok {
			t.Fatalf("entry %s missing after reload", id)
		}
	}
}

func TestOrphanEntriesNotListedForMissingBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.json")
	writeFile(t, path, `{"books":[],"diary_entries":[{"id":"d1","book_id":"gone","date":"2024-01-01","content":"left behind"}]}`)

	mgr := reopen(t, path)
	if got := mgr.ListDiaryEntriesForBook("gone"); got == nil || len(got) != 0 {
		t.Fatalf("list for missing book = %#v", got)
	}
	if got := mgr.SearchDiaryEntries("gone", "left"); len(got) != 0 {
		t.Fatalf("search for missing book = %+v", got)
	}
	if _, ok := mgr.GetDiaryEntry("d1"); !ok {
		t.Fatalf("orphan entry should still be reachable by id")
	}
}

func TestAddBooksSavesOnce(t *testing.T) {
	store := &failingStore{}
	mgr, err := NewLibraryManager(store)
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	ids, err := mgr.AddBooks([]BookFields{
		{Title: "Dune", Author: "Herbert"},
		{Title: "Emma", Author: "Austen"},
		{Title: "Ulysses", Author: "Joyce"},
	})
	if err != nil {
		t.Fatalf("add books: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
	if len(ids) != 3 || len(store.saved.Books) != 3 {
		t.Fatalf("ids=%v saved=%+v", ids, store.saved.Books)
	}
	for i, b := range mgr.ListBooks() {
		if b.ID != ids[i] {
			t.Fatalf("book %d id %s, want %s", i, b.ID, ids[i])
		}
	}

	if ids, err := mgr.AddBooks(nil); err != nil || ids != nil || store.saves != 1 {
		t.Fatalf("empty batch: ids=%v err=%v saves=%d", ids, err, store.saves)
	}

	store.saveErr = fmt.Errorf("%w: disk full", ErrPersistence)
	ids, err = mgr.AddBooks([]BookFields{{Title: "Beloved", Author: "Morrison"}})
	if !errors.Is(err, ErrPersistence) || len(ids) != 1 {
		t.Fatalf("failed batch: ids=%v err=%v", ids, err)
	}
	if _, ok := mgr.GetBook(ids[0]); !ok {
		t.Fatalf("batch should stay in memory after a failed save")
	}
}
