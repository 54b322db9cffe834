package dataset

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recyclerate/feature"
)

const sampleCSV = `City/District,Waste Type,Waste Generated (Tons/Day),Year,Recycling Rate (%)
Mumbai,Plastic,50,2020,40
Delhi,Organic,70,2021,55
Bengaluru,Plastic,,2022,60
Chennai,E-Waste,30,2019,35
`

func TestPreprocessOneHotDropFirst(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), "")
	require.NoError(t, err)

	frame, enc, err := Preprocess(table)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Waste Generated (Tons/Day)",
		"Year",
		"Recycling Rate (%)",
		"City/District_Chennai",
		"City/District_Delhi",
		"City/District_Mumbai",
		"Waste Type_Organic",
		"Waste Type_Plastic",
	}, frame.Columns)

	// the Bengaluru row has no tonnage and is dropped
	require.Equal(t, 3, frame.Len())
	assert.Equal(t, []float64{50, 2020, 40, 0, 0, 1, 0, 1}, frame.Data[0])
	assert.Equal(t, []float64{30, 2019, 35, 1, 0, 0, 0, 0}, frame.Data[2])

	assert.Equal(t, "Bengaluru", enc.Dropped[feature.CityField])
	assert.Equal(t, "E-Waste", enc.Dropped[feature.WasteTypeField])
	require.Len(t, enc.Fields, 2)
	assert.Equal(t, []string{"Bengaluru", "Chennai", "Delhi", "Mumbai"}, enc.Fields[0].Values)
}

func TestSplitTargetAndDrop(t *testing.T) {
	frame := &Frame{
		Columns: []string{"a", feature.TargetColumn, "b"},
		Data:    [][]float64{{1, 10, 2}, {3, 20, 4}},
	}

	x, y, names, err := frame.SplitTarget(feature.TargetColumn)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, x)
	assert.Equal(t, []float64{10, 20}, y)
	assert.Equal(t, []string{"a", "b"}, names)

	_, _, _, err = frame.Drop(feature.TargetColumn).SplitTarget(feature.TargetColumn)
	assert.Error(t, err)
}

func TestReindex(t *testing.T) {
	frame := &Frame{Columns: []string{"a", "b", "z"}, Data: [][]float64{{1, 2, 9}}}

	out, extra := frame.Reindex([]string{"b", "c", "a"})

	assert.Equal(t, []string{"b", "c", "a"}, out.Columns)
	assert.Equal(t, [][]float64{{2, 0, 1}}, out.Data)
	assert.Equal(t, []string{"z"}, extra)
}

func TestReadCSVWithEncoding(t *testing.T) {
	// "Cost (\xa3)" is windows-1252 for the pound sign
	raw := "Cost (\xa3),Year\n10,2020\n"
	table, err := ReadCSV(strings.NewReader(raw), "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "Cost (£)", table.Columns[0])

	_, err = ReadCSV(strings.NewReader(raw), "no-such-encoding")
	assert.Error(t, err)
}

func TestPreprocessEmpty(t *testing.T) {
	_, _, err := Preprocess(&Table{Columns: []string{"a"}})
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestWritePredictions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePredictions(&buf, []float64{41.5, 60, 12.25}))
	assert.Equal(t, "Predicted Recycling Rate (%)\n41.5\n60\n12.25\n", buf.String())

	path := filepath.Join(t.TempDir(), "out", "predictions.csv")
	require.NoError(t, WritePredictions(path, []float64{1}))
	table, err := LoadCSV(path, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, table.Rows)
}
