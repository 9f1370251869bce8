// Package importer turns dealer inventory feeds into draft listings.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	enc "github.com/MrJamesThe3rd/ironyard/internal/encoding"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

var ErrNoHeader = errors.New("feed has no title column")

// Row is one parsed feed line. Line is 1-based and counts the header.
type Row struct {
	Line   int
	Params listing.CreateParams
}

type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Feed is the outcome of parsing a whole upload.
type Feed struct {
	Charset string
	Rows    []Row
	Errors  []RowError
}

// Header spellings seen in dealer exports, keyed by field.
var aliases = map[string][]string{
	"title":       {"title", "name", "listing", "equipment"},
	"description": {"description", "details", "notes"},
	"make":        {"make", "manufacturer", "brand"},
	"model":       {"model"},
	"year":        {"year", "model year"},
	"hours":       {"hours", "operating hours", "hour meter"},
	"price":       {"price", "asking price", "list price"},
	"currency":    {"currency"},
	"location":    {"location", "city", "yard"},
}

type columns map[string]int

// Parse reads a CSV feed. The delimiter is comma, semicolon or tab, chosen
// from the header line; columns are matched by name in any order.
func Parse(r io.Reader) (Feed, error) {
	utf8r, charset, err := enc.Decode(r)
	if err != nil {
		return Feed{}, fmt.Errorf("detect encoding: %w", err)
	}

	br := bufio.NewReader(utf8r)

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Feed{}, ErrNoHeader
	}

	if err != nil {
		return Feed{}, fmt.Errorf("read csv: %w", err)
	}

	cols := mapColumns(header)
	if _, ok := cols["title"]; !ok {
		return Feed{}, ErrNoHeader
	}

	feed := Feed{Charset: charset}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			line := 0

			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}

			feed.Errors = append(feed.Errors, RowError{Line: line, Message: err.Error()})

			continue
		}

		line, _ := reader.FieldPos(0)

		if blank(record) {
			continue
		}

		params, err := parseRecord(cols, record)
		if err != nil {
			feed.Errors = append(feed.Errors, RowError{Line: line, Message: err.Error()})
			continue
		}

		feed.Rows = append(feed.Rows, Row{Line: line, Params: params})
	}

	return feed, nil
}

func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, count := ',', bytes.Count(line, []byte{','})

	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > count {
			best, count = d, n
		}
	}

	return best
}

func mapColumns(header []string) columns {
	cols := make(columns)

	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		name = strings.NewReplacer("_", " ", "-", " ").Replace(name)

		for field, names := range aliases {
			if _, taken := cols[field]; taken {
				continue
			}

			for _, alias := range names {
				if name == alias {
					cols[field] = i
				}
			}
		}
	}

	return cols
}

func parseRecord(cols columns, record []string) (listing.CreateParams, error) {
	get := func(field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(record) {
			return ""
		}

		return strings.TrimSpace(record[idx])
	}

	p := listing.CreateParams{
		Title:       get("title"),
		Description: get("description"),
		Make:        get("make"),
		Model:       get("model"),
		Currency:    get("currency"),
		Location:    get("location"),
	}

	if p.Title == "" {
		return p, errors.New("missing title")
	}

	var err error

	if p.Year, err = parseInt(get("year")); err != nil {
		return p, fmt.Errorf("invalid year: %w", err)
	}

	if p.Hours, err = parseInt(get("hours")); err != nil {
		return p, fmt.Errorf("invalid hours: %w", err)
	}

	if s := get("price"); s != "" {
		if p.Price, err = parsePrice(s); err != nil {
			return p, fmt.Errorf("invalid price %q: %w", s, err)
		}
	}

	return p, nil
}

// parseInt accepts thousands separators, as in "12,400" hours.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	clean := strings.NewReplacer(",", "", ".", "", " ", "").Replace(s)

	return strconv.Atoi(clean)
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}
