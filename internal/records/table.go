package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is a CSV file held in memory: a header and rows of the same width.
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnNotFoundError is returned when a table has no column with the given name.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// ReadCSV reads the CSV file at path. The first record is the header.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return t, nil
}

// Read parses CSV data from r. The first record is the header.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header")
	}

	if err != nil {
		return nil, err
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	return &Table{Header: header, Rows: rows}, nil
}

// Write encodes the table as CSV to w.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Header); err != nil {
		return err
	}

	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}

	return cw.Error()
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of column in the header.
func (t *Table) ColumnIndex(column string) (int, error) {
	for i, name := range t.Header {
		if name == column {
			return i, nil
		}
	}

	return -1, &ColumnNotFoundError{Column: column}
}

// Value returns the cell of row in column.
func (t *Table) Value(row int, column string) (string, error) {
	idx, err := t.ColumnIndex(column)
	if err != nil {
		return "", err
	}

	return t.Rows[row][idx], nil
}

// Index maps the values of column to their row positions. Later rows win on
// duplicate values.
func (t *Table) Index(column string) (map[string]int, error) {
	idx, err := t.ColumnIndex(column)
	if err != nil {
		return nil, err
	}

	m := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		m[strings.TrimSpace(row[idx])] = i
	}

	return m, nil
}
