// Package shell is a line-oriented front end for the reading log. It only
// talks to the library through LibraryManager operations.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"reading-log/library"

	"golang.org/x/term"
)

const (
	defaultWidth = 100
	shortIDLen   = 8
	maxLineSize  = 1 << 20
)

// Shell reads commands from in and writes results to out.
type Shell struct {
	mgr     *library.LibraryManager
	sc      *bufio.Scanner
	out     io.Writer
	prompts bool
	width   int
	now     func() time.Time
}

// New builds a Shell. Prompts are printed only when in is a terminal, so
// piped scripts produce clean output.
func New(mgr *library.LibraryManager, in io.Reader, out io.Writer) *Shell {
	s := &Shell{
		mgr:   mgr,
		sc:    bufio.NewScanner(in),
		out:   out,
		width: defaultWidth,
		now:   time.Now,
	}
	s.sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.prompts = true
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 40 {
			s.width = w
		}
	}
	return s
}

// Run processes commands until "exit" or end of input.
func (s *Shell) Run() error {
	if s.prompts {
		s.printf("Reading log: %d book(s), %d diary entr(ies).\n", s.mgr.Stats().Books, s.mgr.Stats().DiaryEntries)
		s.printf("Type 'help' for the list of commands.\n")
	}

	for {
		s.prompt("\n> ")
		if !s.sc.Scan() {
			break
		}
		cmd := strings.ToLower(strings.TrimSpace(s.sc.Text()))

		switch cmd {
		case "":
			continue
		case "help":
			s.handleHelp()
		case "add book":
			s.handleAddBook()
		case "list books":
			s.handleListBooks()
		case "search book", "search books":
			s.handleSearchBooks()
		case "show book":
			s.handleShowBook()
		case "update book":
			s.handleUpdateBook()
		case "delete book":
			s.handleDeleteBook()
		case "add entry":
			s.handleAddEntry()
		case "list entries":
			s.handleListEntries()
		case "search entries":
			s.handleSearchEntries()
		case "update entry":
			s.handleUpdateEntry()
		case "delete entry":
			s.handleDeleteEntry()
		case "stats":
			st := s.mgr.Stats()
			s.printf("%d book(s), %d diary entr(ies)\n", st.Books, st.DiaryEntries)
		case "save":
			if err := s.mgr.Save(); err != nil {
				s.printf("Error saving: %v\n", err)
			} else {
				s.printf("Saved.\n")
			}
		case "exit", "quit":
			s.printf("Goodbye!\n")
			return nil
		default:
			s.printf("Unknown command %q. Type 'help' for the list of commands.\n", cmd)
		}
	}
	return s.sc.Err()
}

func (s *Shell) handleHelp() {
	s.printf("Available commands:\n")
	s.printf("  Books:   add book, list books, search book, show book, update book, delete book\n")
	s.printf("  Diary:   add entry, list entries, search entries, update entry, delete entry\n")
	s.printf("  System:  stats, save, help, exit\n")
	s.printf("IDs may be abbreviated to any unique prefix.\n")
}

// ------------------ Books ------------------

func (s *Shell) handleAddBook() {
	title, ok := s.ask("Title: ")
	if !ok {
		return
	}
	author, ok := s.ask("Author: ")
	if !ok {
		return
	}
	year, ok := s.askYear("Published year: ", 0)
	if !ok {
		return
	}
	genre, ok := s.ask("Genre (optional): ")
	if !ok {
		return
	}
	memo, ok := s.ask("Memo (optional): ")
	if !ok {
		return
	}
	if title == "" || author == "" {
		s.printf("Error: title and author are required\n")
		return
	}

	id, err := s.mgr.AddBook(library.BookFields{Title: title, Author: author, PublishedYear: year, Genre: genre, Memo: memo})
	if err != nil {
		s.reportError("adding book", err)
		if id == "" {
			return
		}
	}
	s.printf("Added book '%s' with ID %s\n", title, id)
}

func (s *Shell) handleListBooks() {
	books := s.mgr.ListBooks()
	if len(books) == 0 {
		s.printf("No books in library.\n")
		return
	}
	s.printBooks(books)
}

func (s *Shell) handleSearchBooks() {
	query, ok := s.ask("Query: ")
	if !ok {
		return
	}
	books := s.mgr.SearchBooks(query)
	if len(books) == 0 {
		s.printf("No books found matching '%s'.\n", query)
		return
	}
	s.printf("Found %d book(s) matching '%s':\n", len(books), query)
	s.printBooks(books)
}

func (s *Shell) handleShowBook() {
	b, ok := s.askBook()
	if !ok {
		return
	}
	s.printf("ID:        %s\n", b.ID)
	s.printf("Title:     %s\n", b.Title)
	s.printf("Author:    %s\n", b.Author)
	s.printf("Published: %d\n", b.PublishedYear)
	s.printf("Genre:     %s\n", b.Genre)
	s.printf("Memo:      %s\n", b.Memo)

	entries := s.mgr.ListDiaryEntriesForBook(b.ID)
	s.printf("Diary entries: %d\n", len(entries))
	if len(entries) > 0 {
		s.printEntries(entries)
	}
}

func (s *Shell) handleUpdateBook() {
	b, ok := s.askBook()
	if !ok {
		return
	}
	s.printf("Press Enter to keep the current value.\n")

	f := library.BookFields{Title: b.Title, Author: b.Author, PublishedYear: b.PublishedYear, Genre: b.Genre, Memo: b.Memo}
	if f.Title, ok = s.askDefault("Title", b.Title); !ok {
		return
	}
	if f.Author, ok = s.askDefault("Author", b.Author); !ok {
		return
	}
	if f.PublishedYear, ok = s.askYear(fmt.Sprintf("Published year [%d]: ", b.PublishedYear), b.PublishedYear); !ok {
		return
	}
	if f.Genre, ok = s.askDefault("Genre", b.Genre); !ok {
		return
	}
	if f.Memo, ok = s.askDefault("Memo", b.Memo); !ok {
		return
	}

	updated, err := s.mgr.UpdateBook(b.ID, f)
	if err != nil {
		s.reportError("updating book", err)
	}
	if updated {
		s.printf("Updated book %s\n", b.ID)
	}
}

func (s *Shell) handleDeleteBook() {
	b, ok := s.askBook()
	if !ok {
		return
	}
	n := len(s.mgr.ListDiaryEntriesForBook(b.ID))
	answer, ok := s.ask(fmt.Sprintf("Delete '%s' and its %d diary entr(ies)? [y/N]: ", b.Title, n))
	if !ok {
		return
	}
	if a := strings.ToLower(answer); a != "y" && a != "yes" {
		s.printf("Cancelled.\n")
		return
	}

	deleted, err := s.mgr.DeleteBook(b.ID)
	if err != nil {
		s.reportError("deleting book", err)
	}
	if deleted {
		s.printf("Deleted book '%s'\n", b.Title)
	}
}

// ------------------ Diary entries ------------------

func (s *Shell) handleAddEntry() {
	b, ok := s.askBook()
	if !ok {
		return
	}
	date, ok := s.askDate("Date (YYYY-MM-DD, Enter for today): ", s.now())
	if !ok {
		return
	}
	content, ok := s.ask("Content: ")
	if !ok {
		return
	}

	id, err := s.mgr.AddDiaryEntry(b.ID, date, content)
	if err != nil {
		s.reportError("adding diary entry", err)
		if id == "" {
			return
		}
	}
	s.printf("Added diary entry %s to '%s'\n", id, b.Title)
}

func (s *Shell) handleListEntries() {
	b, ok := s.askBook()
	if !ok {
		return
	}
	entries := s.mgr.ListDiaryEntriesForBook(b.ID)
	if len(entries) == 0 {
		s.printf("No diary entries for '%s'.\n", b.Title)
		return
	}
	s.printf("Diary entries for '%s':\n", b.Title)
	s.printEntries(entries)
}

func (s *Shell) handleSearchEntries() {
	b, ok := s.askBook()
	if !ok {
		return
	}
	query, ok := s.ask("Query: ")
	if !ok {
		return
	}
	entries := s.mgr.SearchDiaryEntries(b.ID, query)
	if len(entries) == 0 {
		s.printf("No diary entries found matching '%s'.\n", query)
		return
	}
	s.printf("Found %d diary entr(ies) matching '%s':\n", len(entries), query)
	s.printEntries(entries)
}

func (s *Shell) handleUpdateEntry() {
	e, ok := s.askEntry()
	if !ok {
		return
	}
	s.printf("Press Enter to keep the current value.\n")
	date, ok := s.askDate(fmt.Sprintf("Date [%s]: ", e.Date.Format(library.DateLayout)), e.Date)
	if !ok {
		return
	}
	content, ok := s.askDefault("Content", e.Content)
	if !ok {
		return
	}

	updated, err := s.mgr.UpdateDiaryEntry(e.ID, library.DiaryFields{Date: date, Content: content})
	if err != nil {
		s.reportError("updating diary entry", err)
	}
	if updated {
		s.printf("Updated diary entry %s\n", e.ID)
	}
}

func (s *Shell) handleDeleteEntry() {
	e, ok := s.askEntry()
	if !ok {
		return
	}
	deleted, err := s.mgr.DeleteDiaryEntry(e.ID)
	if err != nil {
		s.reportError("deleting diary entry", err)
	}
	if deleted {
		s.printf("Deleted diary entry %s\n", e.ID)
	}
}

// ------------------ Input helpers ------------------

func (s *Shell) ask(prompt string) (string, bool) {
	s.prompt(prompt)
	if !s.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.sc.Text()), true
}

func (s *Shell) askDefault(label, current string) (string, bool) {
	v, ok := s.ask(fmt.Sprintf("%s [%s]: ", label, truncateString(current, 30)))
	if !ok {
		return "", false
	}
	if v == "" {
		return current, true
	}
	return v, true
}

func (s *Shell) askYear(prompt string, fallback int) (int, bool) {
	raw, ok := s.ask(prompt)
	if !ok {
		return 0, false
	}
	if raw == "" {
		return fallback, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		s.printf("Invalid year: %s\n", raw)
		return 0, false
	}
	return year, true
}

func (s *Shell) askDate(prompt string, fallback time.Time) (time.Time, bool) {
	raw, ok := s.ask(prompt)
	if !ok {
		return time.Time{}, false
	}
	if raw == "" {
		return fallback, true
	}
	date, err := library.ParseDate(raw)
	if err != nil {
		s.printf("Invalid date: %s (expected YYYY-MM-DD)\n", raw)
		return time.Time{}, false
	}
	return date, true
}

func (s *Shell) askBook() (library.Book, bool) {
	raw, ok := s.ask("Book ID: ")
	if !ok {
		return library.Book{}, false
	}
	b, err := s.resolveBook(raw)
	if err != nil {
		s.printf("Error: %v\n", err)
		return library.Book{}, false
	}
	return b, true
}

func (s *Shell) askEntry() (library.DiaryEntry, bool) {
	raw, ok := s.ask("Entry ID: ")
	if !ok {
		return library.DiaryEntry{}, false
	}
	e, err := s.resolveEntry(raw)
	if err != nil {
		s.printf("Error: %v\n", err)
		return library.DiaryEntry{}, false
	}
	return e, true
}

// resolveBook accepts a full id or a unique prefix of one.
func (s *Shell) resolveBook(raw string) (library.Book, error) {
	if raw == "" {
		return library.Book{}, errors.New("book ID cannot be empty")
	}
	if b, ok := s.mgr.GetBook(raw); ok {
		return b, nil
	}
	var matches []library.Book
	for _, b := range s.mgr.ListBooks() {
		if strings.HasPrefix(b.ID, raw) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return library.Book{}, fmt.Errorf("book %s not found", raw)
	case 1:
		return matches[0], nil
	default:
		return library.Book{}, fmt.Errorf("book ID %s is ambiguous (%d matches)", raw, len(matches))
	}
}

func (s *Shell) resolveEntry(raw string) (library.DiaryEntry, error) {
	if raw == "" {
		return library.DiaryEntry{}, errors.New("entry ID cannot be empty")
	}
	if e, ok := s.mgr.GetDiaryEntry(raw); ok {
		return e, nil
	}
	var matches []library.DiaryEntry
	for _, b := range s.mgr.ListBooks() {
		for _, e := range s.mgr.ListDiaryEntriesForBook(b.ID) {
			if strings.HasPrefix(e.ID, raw) {
				matches = append(matches, e)
			}
		}
	}
	switch len(matches) {
	case 0:
		return library.DiaryEntry{}, fmt.Errorf("diary entry %s not found", raw)
	case 1:
		return matches[0], nil
	default:
		return library.DiaryEntry{}, fmt.Errorf("entry ID %s is ambiguous (%d matches)", raw, len(matches))
	}
}

// ------------------ Output helpers ------------------

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) prompt(p string) {
	if s.prompts {
		s.printf("%s", p)
	}
}

func (s *Shell) reportError(action string, err error) {
	s.printf("Error %s: %v\n", action, err)
	if errors.Is(err, library.ErrPersistence) {
		s.printf("The change is kept in memory; run 'save' to retry writing it.\n")
	}
}

func (s *Shell) printBooks(books []library.Book) {
	PrintBooks(s.out, books, s.width)
}

func (s *Shell) printEntries(entries []library.DiaryEntry) {
	PrintEntries(s.out, entries, s.width)
}

// PrintBooks writes a fixed-width table of books sized to width columns.
func PrintBooks(w io.Writer, books []library.Book, width int) {
	titleW, authorW := columnWidths(width)
	fmt.Fprintf(w, "%-*s %-*s %-*s %-6s %s\n", shortIDLen, "ID", titleW, "Title", authorW, "Author", "Year", "Genre")
	fmt.Fprintln(w, strings.Repeat("-", min(width, shortIDLen+titleW+authorW+20)))
	for _, b := range books {
		fmt.Fprintf(w, "%-*s %-*s %-*s %-6d %s\n",
			shortIDLen, shortID(b.ID),
			titleW, truncateString(b.Title, titleW),
			authorW, truncateString(b.Author, authorW),
			b.PublishedYear,
			truncateString(b.Genre, 12))
	}
}

// PrintEntries writes one line per diary entry.
func PrintEntries(w io.Writer, entries []library.DiaryEntry, width int) {
	contentW := max(width-shortIDLen-len(library.DateLayout)-2, 20)
	fmt.Fprintf(w, "%-*s %-10s %s\n", shortIDLen, "ID", "Date", "Content")
	fmt.Fprintln(w, strings.Repeat("-", min(width, 60)))
	for _, e := range entries {
		content := strings.ReplaceAll(e.Content, "\n", " ")
		fmt.Fprintf(w, "%-*s %-10s %s\n", shortIDLen, shortID(e.ID), e.Date.Format(library.DateLayout), truncateString(content, contentW))
	}
}

func columnWidths(width int) (title, author int) {
	free := max(width-shortIDLen-6-12-4, 30)
	title = free * 3 / 5
	author = free - title
	return title, author
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}
