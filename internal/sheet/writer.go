package sheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Writer streams a new store workbook: the header row is written by
// NewWriter, data rows by WriteRow, and the finished workbook by Commit.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	f      *excelize.File
	sw     *excelize.StreamWriter
	schema Schema
	row    int // next 1-based row number
}

// NewWriter creates an in-memory workbook with a single worksheet named after
// the schema, sets column widths and writes the bold header row.
func NewWriter(s Schema) (*Writer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), s.SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sheet: rename worksheet: %w", err)
	}

	sw, err := f.NewStreamWriter(s.SheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sheet: stream writer: %w", err)
	}

	// Widths must be set before the first SetRow.
	for i, c := range s.Columns {
		if c.Width <= 0 {
			continue
		}
		if err := sw.SetColWidth(i+1, i+1, c.Width); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheet: column width: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sheet: header style: %w", err)
	}

	w := &Writer{f: f, sw: sw, schema: s, row: 1}

	header := make([]interface{}, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = excelize.Cell{StyleID: bold, Value: c.Header}
	}
	if err := w.setRow(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// WriteRow appends one data row. vals must be in schema column order; short
// rows are padded with empty cells and long rows are rejected.
func (w *Writer) WriteRow(vals []string) error {
	if len(vals) > w.schema.Width() {
		return fmt.Errorf("%w: row has %d cells, schema has %d", ErrSchemaMismatch, len(vals), w.schema.Width())
	}
	cells := make([]interface{}, w.schema.Width())
	for i := range cells {
		v := ""
		if i < len(vals) {
			v = Sanitize(vals[i])
		}
		cells[i] = v
	}
	return w.setRow(cells)
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int { return w.row - 2 }

// Commit flushes the stream and writes the complete workbook to dst. The
// Writer is closed afterwards regardless of the outcome.
func (w *Writer) Commit(dst io.Writer) error {
	defer w.Close()

	if err := w.sw.Flush(); err != nil {
		return fmt.Errorf("sheet: flush: %w", err)
	}
	if err := w.f.Write(dst); err != nil {
		return fmt.Errorf("sheet: write workbook: %w", err)
	}
	return nil
}

// Close releases the workbook. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *Writer) setRow(cells []interface{}) error {
	axis, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return fmt.Errorf("sheet: row %d: %w", w.row, err)
	}
	if err := w.sw.SetRow(axis, cells); err != nil {
		return fmt.Errorf("sheet: row %d: %w", w.row, err)
	}
	w.row++
	return nil
}
