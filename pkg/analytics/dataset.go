package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV loads a dataset from CSV. The first record is the header; header
// names are trimmed and lowercased to match catalog column names. Ragged
// rows are tolerated (csv.Reader is configured lenient) since the master
// export occasionally drops trailing empty cells.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, record)
	}

	return NewDataset(columns, rows), nil
}

// MergeDatasets concatenates partial datasets into one, aligning rows by
// column name. The merged header is the union of the parts' headers in
// first-seen order; cells absent from a part stay empty.
func MergeDatasets(parts ...*Dataset) *Dataset {
	var columns []string
	index := make(map[string]int)
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, c := range p.columns {
			if _, ok := index[c]; ok {
				continue
			}
			index[c] = len(columns)
			columns = append(columns, c)
		}
	}

	var rows [][]string
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, src := range p.rows {
			row := make([]string, len(columns))
			for i, c := range p.columns {
				if i < len(src) {
					row[index[c]] = src[i]
				}
			}
			rows = append(rows, row)
		}
	}
	return NewDataset(columns, rows)
}
