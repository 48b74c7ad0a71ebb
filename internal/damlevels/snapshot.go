package damlevels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// ErrEmptySnapshot is returned when the CSV has no header row.
var ErrEmptySnapshot = errors.New("snapshot has no header row")

// latin1BOM is a UTF-8 byte order mark as it appears after Latin-1 decoding.
const latin1BOM = "ï»¿"

// Snapshot is the wide dam-levels table with normalized column names.
type Snapshot struct {
	Columns []string
	Rows    [][]string
}

// ReadSnapshot parses the City's dam-levels CSV. The export is Latin-1
// encoded, so bytes are decoded before CSV parsing. Column names are
// normalized and must be unique after normalization.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptySnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := NormalizeColumnName(strings.TrimPrefix(h, latin1BOM))
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate column %q at positions %d and %d", name, prev, i)
		}
		seen[name] = i
		columns[i] = name
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot row %d: %w", len(rows)+2, err)
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}

	return &Snapshot{Columns: columns, Rows: rows}, nil
}

// Cell returns the value at (row, col), or "" for short rows.
func (s *Snapshot) Cell(row, col int) string {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return ""
	}
	return s.Rows[row][col]
}

// DateColumn locates the date column: an exact "date" match first, then any
// column containing "date", then the first column.
func (s *Snapshot) DateColumn() int {
	for i, c := range s.Columns {
		if c == "date" {
			return i
		}
	}
	for i, c := range s.Columns {
		if strings.Contains(c, "date") {
			return i
		}
	}
	return 0
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NormalizeColumnName trims, collapses internal whitespace and lowercases.
func NormalizeColumnName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ParseNumber coerces a cell to a float. Anything unparseable, including
// footnote markers and blanks, reports false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// septRe matches the four-letter September abbreviation the export sometimes uses.
var septRe = regexp.MustCompile(`(?i)sept`)

// dateLayouts are tried in order. The export uses day-month-2digit-year.
var dateLayouts = []string{
	"02-Jan-06",
	"2-Jan-06",
	"02 Jan 06",
	"2006-01-02",
	"2006/01/02",
}

// ParseDate parses a snapshot date such as "01-Sept-24", normalizing the
// month abbreviation before parsing.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	s = septRe.ReplaceAllString(s, "Sep")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
