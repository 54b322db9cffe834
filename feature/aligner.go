package feature

import (
	"sort"
	"strings"
)

// RawInput is the sparse, user-entered attribute set. Values are assumed to be
// validated by the caller.
type RawInput struct {
	Categorical map[string]string
	Numeric     map[string]float64
}

// CategoricalField declares an encoded column and every value seen for it at
// training time, including the reference category that has no one-hot column.
type CategoricalField struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Unseen records a categorical value that maps to no training-time category.
type Unseen struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Vector is the aligned, schema-ordered feature row.
type Vector struct {
	schema Schema
	values []float64
}

func (v Vector) Schema() Schema {
	return v.schema
}

func (v Vector) Len() int {
	return len(v.values)
}

// Values returns a copy of the row in schema order.
func (v Vector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.schema {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.values))
	for i, name := range v.schema {
		m[name] = v.values[i]
	}
	return m
}

// NewVector builds a vector from a schema-ordered row.
func NewVector(schema Schema, values []float64) Vector {
	return Vector{schema: schema, values: append([]float64(nil), values...)}
}

// Aligner maps RawInput onto a fixed schema. It holds no mutable state and is
// safe for concurrent use.
type Aligner struct {
	schema  Schema
	index   map[string]int
	columns map[string]map[string]int
	known   map[string]map[string]bool
}

// NewAligner builds the one-hot lookup table from the schema and the declared
// categorical fields.
func NewAligner(schema Schema, fields []CategoricalField) *Aligner {
	a := &Aligner{
		schema:  append(Schema(nil), schema...),
		index:   schema.Index(),
		columns: make(map[string]map[string]int),
		known:   make(map[string]map[string]bool),
	}
	for _, field := range fields {
		a.addField(field.Name, field.Values)
	}
	return a
}

func (a *Aligner) addField(name string, values []string) {
	prefix := name + OneHotSeparator
	cols := make(map[string]int)
	known := make(map[string]bool, len(values))
	for i, col := range a.schema {
		if strings.HasPrefix(col, prefix) {
			value := strings.TrimPrefix(col, prefix)
			cols[value] = i
			known[value] = true
		}
	}
	for _, value := range values {
		known[value] = true
	}
	a.columns[name] = cols
	a.known[name] = known
}

func (a *Aligner) Schema() Schema {
	return a.schema
}

// IsCategorical reports whether field was declared as a categorical field.
func (a *Aligner) IsCategorical(field string) bool {
	_, ok := a.columns[field]
	return ok
}

// Align returns the feature vector for in. Unknown categorical values leave
// every indicator of that field at 0.
func (a *Aligner) Align(in RawInput) Vector {
	v, _ := a.AlignDetailed(in)
	return v
}

// AlignDetailed behaves like Align and also reports the categorical values
// that matched no training-time category.
func (a *Aligner) AlignDetailed(in RawInput) (Vector, []Unseen) {
	values := make([]float64, len(a.schema))
	var unseen []Unseen

	for _, field := range sortedKeys(in.Categorical) {
		value := in.Categorical[field]
		idx, ok := a.lookup(field, value)
		if ok {
			values[idx] = 1
		}
		if !a.isKnown(field, value, ok) {
			unseen = append(unseen, Unseen{Field: field, Value: value})
		}
	}

	for name, value := range in.Numeric {
		if idx, ok := a.index[name]; ok {
			values[idx] = value
		}
	}

	return Vector{schema: a.schema, values: values}, unseen
}

func (a *Aligner) lookup(field, value string) (int, bool) {
	if cols, ok := a.columns[field]; ok {
		idx, found := cols[value]
		return idx, found
	}
	idx, ok := a.index[OneHotName(field, value)]
	return idx, ok
}

func (a *Aligner) isKnown(field, value string, matched bool) bool {
	if matched {
		return true
	}
	known, ok := a.known[field]
	if !ok {
		return false
	}
	return known[value]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
