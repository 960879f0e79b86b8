package sheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadRows decodes every data row of the workbook in r, in stored order, with
// cells mapped onto s. See Each.
func ReadRows(r io.Reader, s Schema) ([][]string, error) {
	var out [][]string
	err := Each(r, s, func(vals []string) error {
		out = append(out, vals)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Each opens the workbook in r and calls fn for each data row in stored order.
// The header row is skipped; fully empty rows are ignored.
//
// The worksheet named s.SheetName is read, falling back to the first sheet.
// Stored columns are matched to schema columns by header text (case and
// spacing insensitive), so every row handed to fn has exactly s.Width() cells
// in schema order; schema columns absent from the file are empty.
//
// Errors:
//   - ErrMalformed when the workbook cannot be opened or has no header row.
//   - ErrSchemaMismatch when a stored header is unknown or repeated, or a data
//     cell sits outside the header's columns.
//   - any error returned by fn, unchanged.
func Each(r io.Reader, s Schema, fn func(vals []string) error) error {
	if err := s.Validate(); err != nil {
		return err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	name := s.SheetName
	if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		list := f.GetSheetList()
		if len(list) == 0 {
			return fmt.Errorf("%w: no worksheets", ErrMalformed)
		}
		name = list[0]
	}

	rows, err := f.Rows(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer rows.Close()

	var mapping []int // stored column -> schema column
	line := 0
	for rows.Next() {
		line++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrMalformed, line, err)
		}
		if isEmpty(cells) {
			continue
		}

		if mapping == nil {
			if mapping, err = mapHeader(cells, s); err != nil {
				return err
			}
			continue
		}

		vals := make([]string, s.Width())
		for i, v := range cells {
			if i >= len(mapping) {
				if v != "" {
					return fmt.Errorf("%w: row %d has data beyond the header", ErrSchemaMismatch, line)
				}
				continue
			}
			vals[mapping[i]] = v
		}
		if err := fn(vals); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if mapping == nil {
		return fmt.Errorf("%w: missing header row", ErrMalformed)
	}
	return nil
}

// mapHeader resolves each stored header cell to its schema column.
func mapHeader(cells []string, s Schema) ([]int, error) {
	idx := s.index()
	used := make(map[int]struct{}, len(cells))
	mapping := make([]int, len(cells))
	for i, h := range cells {
		col, ok := idx[headerKey(h)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrSchemaMismatch, h)
		}
		if _, dup := used[col]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, h)
		}
		used[col] = struct{}{}
		mapping[i] = col
	}
	return mapping, nil
}

func isEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
