package library

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// DateLayout is the textual form of a diary date, both on disk and in search.
const DateLayout = "2006-01-02"

// Book describes one title in the reading log.
type Book struct {
	ID            string
	Title         string
	Author        string
	PublishedYear int
	Genre         string
	Memo          string
}

// DiaryEntry is a dated note attached to exactly one book.
// Date is always a calendar date at UTC midnight.
type DiaryEntry struct {
	ID      string
	BookID  string
	Date    time.Time
	Content string
}

// LibraryData represents the complete library state for persistence.
// Both slices are in insertion order. Stores serialize it through the
// entities' plain forms rather than struct tags.
type LibraryData struct {
	Books        []Book
	DiaryEntries []DiaryEntry
}

// BookFields holds the mutable attributes of a book.
type BookFields struct {
	Title         string
	Author        string
	PublishedYear int
	Genre         string
	Memo          string
}

// DiaryFields holds the mutable attributes of a diary entry.
type DiaryFields struct {
	Date    time.Time
	Content string
}

// NewDate returns the calendar date y-m-d at UTC midnight.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func truncateToDate(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// checkDate rejects dates whose YYYY-MM-DD form would not parse back.
func checkDate(t time.Time) error {
	if y := t.Year(); y < 0 || y > 9999 {
		return fmt.Errorf("%w: year %d outside 0000-9999", ErrInvalidDate, y)
	}
	return nil
}

func (b Book) String() string {
	return fmt.Sprintf("%s by %s (%d)", b.Title, b.Author, b.PublishedYear)
}

func (e DiaryEntry) String() string {
	preview := e.Content
	if utf8.RuneCountInString(preview) > 30 {
		preview = string([]rune(preview)[:30]) + "..."
	}
	return fmt.Sprintf("%s: %s", e.Date.Format(DateLayout), preview)
}

// ------------------ Plain conversions ------------------

// ToPlain converts the book into a generic key-value form.
func (b Book) ToPlain() map[string]any {
	return map[string]any{
		"id":             b.ID,
		"title":          b.Title,
		"author":         b.Author,
		"published_year": b.PublishedYear,
		"genre":          b.Genre,
		"memo":           b.Memo,
	}
}

// BookFromPlain rebuilds a Book. genre and memo may be absent; every other key is required.
func BookFromPlain(m map[string]any) (Book, error) {
	var (
		b   Book
		err error
	)
	if b.ID, err = requireString(m, "id"); err != nil {
		return Book{}, err
	}
	if b.Title, err = requireString(m, "title"); err != nil {
		return Book{}, err
	}
	if b.Author, err = requireString(m, "author"); err != nil {
		return Book{}, err
	}
	if b.PublishedYear, err = requireInt(m, "published_year"); err != nil {
		return Book{}, err
	}
	if b.Genre, err = optionalString(m, "genre"); err != nil {
		return Book{}, err
	}
	if b.Memo, err = optionalString(m, "memo"); err != nil {
		return Book{}, err
	}
	return b, nil
}

// ToPlain converts the entry into a generic key-value form.
func (e DiaryEntry) ToPlain() map[string]any {
	return map[string]any{
		"id":      e.ID,
		"book_id": e.BookID,
		"date":    e.Date.Format(DateLayout),
		"content": e.Content,
	}
}

// DiaryEntryFromPlain rebuilds a DiaryEntry; all keys are required.
func DiaryEntryFromPlain(m map[string]any) (DiaryEntry, error) {
	var (
		e   DiaryEntry
		err error
	)
	if e.ID, err = requireString(m, "id"); err != nil {
		return DiaryEntry{}, err
	}
	if e.BookID, err = requireString(m, "book_id"); err != nil {
		return DiaryEntry{}, err
	}
	raw, err := requireString(m, "date")
	if err != nil {
		return DiaryEntry{}, err
	}
	if e.Date, err = ParseDate(raw); err != nil {
		return DiaryEntry{}, fmt.Errorf("%w: field %q: %v", ErrMalformedRecord, "date", err)
	}
	if e.Content, err = requireString(m, "content"); err != nil {
		return DiaryEntry{}, err
	}
	return e, nil
}

func requireString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedRecord, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string, got %T", ErrMalformedRecord, key, v)
	}
	return s, nil
}

func optionalString(m map[string]any, key string) (string, error) {
	if _, ok := m[key]; !ok {
		return "", nil
	}
	return requireString(m, key)
}

func requireInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedRecord, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n >= math.MinInt && n <= math.MaxInt {
			return int(n), nil
		}
	case float64:
		// JSON numbers decode into float64 when the target is any.
		if n == math.Trunc(n) && n >= math.MinInt && n < -math.MinInt {
			return int(n), nil
		}
	case json.Number:
		if i, err := n.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return int(i), nil
		}
	}
	return 0, fmt.Errorf("%w: field %q must be an integer, got %v", ErrMalformedRecord, key, v)
}
