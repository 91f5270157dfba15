package records

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/italolelis/poster_downloader/internal/downloader"
)

// missingValues are the cell values treated as absent, matching the usual
// null markers of spreadsheet and dataframe exports.
var missingValues = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"None": {},
}

// IsMissing reports whether a cell value counts as absent.
func IsMissing(value string) bool {
	_, ok := missingValues[strings.TrimSpace(value)]

	return ok
}

// DropMissing returns a copy of t without the rows whose column value is missing.
func DropMissing(t *Table, column string) (*Table, error) {
	idx, err := t.ColumnIndex(column)
	if err != nil {
		return nil, err
	}

	out := &Table{Header: slices.Clone(t.Header)}

	for _, row := range t.Rows {
		if IsMissing(row[idx]) {
			continue
		}

		out.Rows = append(out.Rows, row)
	}

	return out, nil
}

// OneHotEncode splits column on sep and appends one 0/1 column per distinct
// value, in sorted order. The source column is dropped. Values are trimmed of
// surrounding whitespace and empty values are ignored. It returns the encoded
// table and the names of the added columns.
func OneHotEncode(t *Table, column, sep string) (*Table, []string, error) {
	idx, err := t.ColumnIndex(column)
	if err != nil {
		return nil, nil, err
	}

	perRow := make([]map[string]struct{}, len(t.Rows))
	distinct := make(map[string]struct{})

	for i, row := range t.Rows {
		perRow[i] = make(map[string]struct{})

		if IsMissing(row[idx]) {
			continue
		}

		for _, value := range strings.Split(row[idx], sep) {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}

			perRow[i][value] = struct{}{}
			distinct[value] = struct{}{}
		}
	}

	values := make([]string, 0, len(distinct))
	for v := range distinct {
		values = append(values, v)
	}

	sort.Strings(values)

	header := make([]string, 0, len(t.Header)-1+len(values))
	header = append(header, t.Header[:idx]...)
	header = append(header, t.Header[idx+1:]...)

	for _, v := range values {
		if slices.Contains(header, v) {
			return nil, nil, fmt.Errorf("encoded value %q collides with an existing column", v)
		}
	}

	header = append(header, values...)

	out := &Table{Header: header, Rows: make([][]string, len(t.Rows))}

	for i, row := range t.Rows {
		encoded := make([]string, 0, len(header))
		encoded = append(encoded, row[:idx]...)
		encoded = append(encoded, row[idx+1:]...)

		for _, v := range values {
			if _, ok := perRow[i][v]; ok {
				encoded = append(encoded, "1")
			} else {
				encoded = append(encoded, "0")
			}
		}

		out.Rows[i] = encoded
	}

	return out, values, nil
}

// Tasks turns every row into a download task. Rows with a missing identifier
// or URL are skipped; the second return value counts them.
func Tasks(t *Table, idColumn, urlColumn string) ([]downloader.Task, int, error) {
	idIdx, err := t.ColumnIndex(idColumn)
	if err != nil {
		return nil, 0, err
	}

	urlIdx, err := t.ColumnIndex(urlColumn)
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]downloader.Task, 0, len(t.Rows))
	skipped := 0

	for _, row := range t.Rows {
		id, url := strings.TrimSpace(row[idIdx]), strings.TrimSpace(row[urlIdx])
		if IsMissing(id) || IsMissing(url) {
			skipped++

			continue
		}

		tasks = append(tasks, downloader.Task{RecordID: id, SourceURL: url})
	}

	return tasks, skipped, nil
}
