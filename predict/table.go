package predict

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"recyclerate/dataset"
	"recyclerate/feature"
)

// FrameFromTable turns a scoring table into schema-ordered rows. Raw
// categorical columns such as "City/District" go through the aligner; every
// other column must be numeric and named in the schema. The target column is
// skipped.
func (p *Predictor) FrameFromTable(t *dataset.Table) (*dataset.Frame, error) {
	if len(t.Rows) == 0 {
		return nil, dataset.ErrNoRows
	}

	categorical := make(map[int]string)
	numeric := make(map[int]string)
	present := make(map[string]bool)
	for i, col := range t.Columns {
		switch {
		case col == feature.TargetColumn:
		case p.aligner.IsCategorical(col):
			categorical[i] = col
		case p.schema.Contains(col):
			numeric[i] = col
			present[col] = true
		default:
			return nil, &InferenceError{Row: -1, Err: fmt.Errorf("column %q is not a model feature", col)}
		}
	}
	for _, name := range feature.NumericFields() {
		if p.schema.Contains(name) && !present[name] {
			return nil, &InferenceError{Row: -1, Err: fmt.Errorf("missing feature column %q", name)}
		}
	}

	frame := &dataset.Frame{Columns: append([]string(nil), p.schema...), Data: make([][]float64, len(t.Rows))}
	for r, row := range t.Rows {
		in := feature.RawInput{
			Categorical: make(map[string]string, len(categorical)),
			Numeric:     make(map[string]float64, len(numeric)),
		}
		for i, col := range categorical {
			if i < len(row) {
				in.Categorical[col] = strings.TrimSpace(row[i])
			}
		}
		for i, col := range numeric {
			if i >= len(row) {
				return nil, &InferenceError{Row: r, Err: fmt.Errorf("missing value for %q", col)}
			}
			v, err := cast.ToFloat64E(strings.TrimSpace(row[i]))
			if err != nil {
				return nil, &InferenceError{Row: r, Err: fmt.Errorf("column %q: %w", col, err)}
			}
			in.Numeric[col] = v
		}
		vec, _ := p.Align(in)
		frame.Data[r] = vec.Values()
	}
	return frame, nil
}
