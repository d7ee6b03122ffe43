package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reading-log/library"
)

type importResult struct {
	IDs    []string
	Errors int
}

// importBooks adds one book per CSV row. The header row names the columns;
// title and author are required, published_year, genre and memo optional.
// Bad rows are reported and skipped. Valid rows are added in one batch so
// the store is written once.
func importBooks(r io.Reader, manager *library.LibraryManager, out io.Writer) (importResult, error) {
	var (
		res   importResult
		batch []library.BookFields
	)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, errors.New("empty CSV file")
	}
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"title", "author"} {
		if _, ok := cols[required]; !ok {
			return res, fmt.Errorf("CSV header is missing the %q column", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			res.Errors++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("read CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)

		fields := library.BookFields{
			Title:  field(rec, "title"),
			Author: field(rec, "author"),
			Genre:  field(rec, "genre"),
			Memo:   field(rec, "memo"),
		}
		if fields.Title == "" || fields.Author == "" {
			fmt.Fprintf(out, "Line %d: ERROR - title and author are required\n", line)
			res.Errors++
			continue
		}
		if raw := field(rec, "published_year"); raw != "" {
			year, err := strconv.Atoi(raw)
			if err != nil {
				fmt.Fprintf(out, "Line %d: ERROR - invalid published_year %q\n", line, raw)
				res.Errors++
				continue
			}
			fields.PublishedYear = year
		}

		batch = append(batch, fields)
	}

	ids, err := manager.AddBooks(batch)
	for i, id := range ids {
		fmt.Fprintf(out, "Importing: %s by %s... SUCCESS (ID: %s)\n", batch[i].Title, batch[i].Author, id)
	}
	res.IDs = ids
	if err != nil {
		return res, fmt.Errorf("save imported books: %w", err)
	}
	return res, nil
}

func printSummary(out io.Writer, manager *library.LibraryManager, res importResult) {
	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", len(res.IDs))
	fmt.Fprintf(out, "Errors: %d\n", res.Errors)

	if len(res.IDs) == 0 {
		return
	}
	fmt.Fprintln(out, "\nImported books:")
	fmt.Fprintf(out, "%-36s %-40s %-30s\n", "ID", "Title", "Author")
	fmt.Fprintln(out, strings.Repeat("-", 108))
	for _, id := range res.IDs {
		book, ok := manager.GetBook(id)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%-36s %-40s %-30s\n", book.ID, truncateString(book.Title, 40), truncateString(book.Author, 30))
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
