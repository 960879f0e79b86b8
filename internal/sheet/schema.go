// Package sheet encodes and decodes the spreadsheet (xlsx) store file.
//
// A store file holds a single worksheet: one header row followed by data rows
// in arrival order. Writing is streaming-only (excelize StreamWriter), which is
// why the store is rebuilt rather than appended in place. Reading maps the
// stored columns onto the current Schema by header name so files written with
// an older column set are carried forward without shifting any values.
package sheet

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
)

// MaxCellRunes is the largest cell value a spreadsheet cell can hold.
const MaxCellRunes = 32767

// DefaultSheetName is the worksheet name used by the waitlist store.
const DefaultSheetName = "Waitlist"

var (
	// ErrMalformed is returned when a store file has no readable header row
	// or cannot be parsed as a workbook.
	ErrMalformed = errors.New("sheet: malformed store file")

	// ErrSchemaMismatch is returned when a stored column cannot be mapped onto
	// the current schema, so re-encoding it would drop data.
	ErrSchemaMismatch = errors.New("sheet: stored columns do not match schema")

	// ErrInvalidSchema is returned for schemas with no columns or with empty
	// or duplicate headers.
	ErrInvalidSchema = errors.New("sheet: invalid schema")
)

// Schema is the fixed table layout of a store file.
type Schema struct {
	SheetName string
	Columns   []domain.Column
}

// DefaultSchema returns the waitlist schema: sheet "Waitlist" with
// domain.Columns.
func DefaultSchema() Schema {
	return Schema{SheetName: DefaultSheetName, Columns: domain.Columns}
}

// Width returns the number of columns.
func (s Schema) Width() int { return len(s.Columns) }

// Validate checks that the schema can be written and matched on read.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.SheetName) == "" || len(s.Columns) == 0 {
		return ErrInvalidSchema
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		k := headerKey(c.Header)
		if k == "" {
			return ErrInvalidSchema
		}
		if _, dup := seen[k]; dup {
			return ErrInvalidSchema
		}
		seen[k] = struct{}{}
	}
	return nil
}

// index maps normalized header text to column position.
func (s Schema) index() map[string]int {
	m := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		m[headerKey(c.Header)] = i
	}
	return m
}

// headerKey normalizes header text for matching: trimmed, case-folded,
// inner whitespace collapsed.
func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Sanitize makes v safe to store in a cell: invalid UTF-8 is replaced,
// characters XML 1.0 cannot carry are dropped, and the value is clipped to
// MaxCellRunes.
func Sanitize(v string) string {
	if !utf8.ValidString(v) {
		v = strings.ToValidUTF8(v, "�")
	}
	v = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, v)
	if utf8.RuneCountInString(v) > MaxCellRunes {
		v = string([]rune(v)[:MaxCellRunes])
	}
	return v
}
