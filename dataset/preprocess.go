package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"recyclerate/feature"
)

// Frame is a fully numeric table, the output of preprocessing.
type Frame struct {
	Columns []string
	Data    [][]float64
}

// Encoding describes how the categorical columns of a table were expanded.
type Encoding struct {
	Fields  []feature.CategoricalField
	Dropped map[string]string
}

func (f *Frame) Len() int {
	return len(f.Data)
}

func (f *Frame) ColumnIndex(name string) int {
	for i, col := range f.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]float64, len(f.Data))
	for i, row := range f.Data {
		values[i] = row[idx]
	}
	return values, nil
}

// Drop returns a frame without the named columns. Missing names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]int, 0, len(f.Columns))
	columns := make([]string, 0, len(f.Columns))
	for i, col := range f.Columns {
		if !drop[col] {
			keep = append(keep, i)
			columns = append(columns, col)
		}
	}
	data := make([][]float64, len(f.Data))
	for r, row := range f.Data {
		out := make([]float64, len(keep))
		for j, idx := range keep {
			out[j] = row[idx]
		}
		data[r] = out
	}
	return &Frame{Columns: columns, Data: data}
}

// SplitTarget separates the feature matrix from the target column.
func (f *Frame) SplitTarget(target string) ([][]float64, []float64, []string, error) {
	y, err := f.Column(target)
	if err != nil {
		return nil, nil, nil, err
	}
	x := f.Drop(target)
	return x.Data, y, x.Columns, nil
}

// Reindex returns a frame whose columns are exactly names, in that order.
// Absent columns are filled with 0; the extra columns are returned so the
// caller can report them.
func (f *Frame) Reindex(names []string) (*Frame, []string) {
	index := make(map[string]int, len(f.Columns))
	for i, col := range f.Columns {
		index[col] = i
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var extra []string
	for _, col := range f.Columns {
		if !wanted[col] {
			extra = append(extra, col)
		}
	}

	data := make([][]float64, len(f.Data))
	for r, row := range f.Data {
		out := make([]float64, len(names))
		for j, name := range names {
			if idx, ok := index[name]; ok {
				out[j] = row[idx]
			}
		}
		data[r] = out
	}
	return &Frame{Columns: append([]string(nil), names...), Data: data}, extra
}

// Preprocess one-hot encodes every non-numeric column and drops rows with a
// missing numeric value. Numeric columns keep their order and come first;
// dummy columns follow per categorical column with sorted categories, the
// first category dropped as the reference.
func Preprocess(t *Table) (*Frame, *Encoding, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, nil, ErrNoRows
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, nil, fmt.Errorf("row %d has %d cells, expected %d", i+1, len(row), len(t.Columns))
		}
	}

	numeric := make([]int, 0, len(t.Columns))
	categorical := make([]int, 0)
	for c := range t.Columns {
		if isNumericColumn(t.Rows, c) {
			numeric = append(numeric, c)
		} else {
			categorical = append(categorical, c)
		}
	}

	enc := &Encoding{Dropped: make(map[string]string)}
	columns := make([]string, 0, len(t.Columns))
	for _, c := range numeric {
		columns = append(columns, t.Columns[c])
	}

	type dummy struct {
		col    int
		values map[string]int
	}
	dummies := make([]dummy, 0, len(categorical))
	for _, c := range categorical {
		categories := distinctValues(t.Rows, c)
		enc.Fields = append(enc.Fields, feature.CategoricalField{Name: t.Columns[c], Values: categories})
		d := dummy{col: c, values: make(map[string]int)}
		for i, value := range categories {
			if i == 0 {
				enc.Dropped[t.Columns[c]] = value
				continue
			}
			d.values[value] = len(columns)
			columns = append(columns, feature.OneHotName(t.Columns[c], value))
		}
		dummies = append(dummies, d)
	}

	data := make([][]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		out := make([]float64, len(columns))
		complete := true
		for j, c := range numeric {
			value, ok := parseNumber(row[c])
			if !ok {
				complete = false
				break
			}
			out[j] = value
		}
		if !complete {
			continue
		}
		for _, d := range dummies {
			if idx, ok := d.values[strings.TrimSpace(row[d.col])]; ok {
				out[idx] = 1
			}
		}
		data = append(data, out)
	}
	if len(data) == 0 {
		return nil, nil, ErrNoRows
	}

	return &Frame{Columns: columns, Data: data}, enc, nil
}

func isNumericColumn(rows [][]string, col int) bool {
	for _, row := range rows {
		cell := strings.TrimSpace(row[col])
		if isMissing(cell) {
			continue
		}
		if _, err := cast.ToFloat64E(cell); err != nil {
			return false
		}
	}
	return true
}

func parseNumber(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if isMissing(cell) {
		return 0, false
	}
	value, err := cast.ToFloat64E(cell)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

func distinctValues(rows [][]string, col int) []string {
	seen := make(map[string]bool)
	values := make([]string, 0)
	for _, row := range rows {
		cell := strings.TrimSpace(row[col])
		if isMissing(cell) || seen[cell] {
			continue
		}
		seen[cell] = true
		values = append(values, cell)
	}
	sort.Strings(values)
	return values
}

func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "nan", "na", "null", "none":
		return true
	}
	return false
}
