package predict

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recyclerate/dataset"
	"recyclerate/feature"
	"recyclerate/ml"
)

var testSchema = feature.Schema{
	feature.WasteGenerated,
	feature.PopulationDensity,
	feature.MunicipalEfficiency,
	feature.CostPerTon,
	feature.AwarenessCampaigns,
	feature.LandfillCapacity,
	feature.Year,
	"City/District_Delhi",
	"City/District_Mumbai",
	"Waste Type_Organic",
	"Waste Type_Plastic",
}

// fakeModel sums its inputs and records every row it sees.
type fakeModel struct {
	schema feature.Schema
	rows   [][]float64
	err    error
	panic  bool
}

func (f *fakeModel) Schema() feature.Schema {
	return f.schema
}

func (f *fakeModel) Predict(row []float64) (float64, error) {
	if f.panic {
		panic("corrupt artifact")
	}
	if f.err != nil {
		return 0, f.err
	}
	f.rows = append(f.rows, append([]float64(nil), row...))
	var sum float64
	for _, v := range row {
		sum += v
	}
	return sum, nil
}

type recordingProgress struct {
	events []int
}

func (r *recordingProgress) Update(pct int) { r.events = append(r.events, pct) }
func (r *recordingProgress) Clear()         { r.events = append(r.events, -1) }

func mumbai() feature.WasteInput {
	return feature.WasteInput{
		City:                "Mumbai",
		WasteType:           "Plastic",
		WasteGenerated:      50.0,
		PopulationDensity:   20000,
		MunicipalEfficiency: 7,
		CostPerTon:          1500.0,
		AwarenessCampaigns:  3,
		LandfillCapacity:    10000.0,
		Year:                2023,
	}
}

func TestPredictInputMumbai(t *testing.T) {
	model := &fakeModel{schema: testSchema}
	p, err := New(model)
	require.NoError(t, err)

	progress := &recordingProgress{}
	result, err := p.PredictInput(context.Background(), mumbai().Raw(), progress)
	require.NoError(t, err)

	require.Len(t, model.rows, 1)
	assert.Equal(t, []float64{50, 20000, 7, 1500, 3, 10000, 2023, 0, 1, 0, 1}, model.rows[0])
	assert.Equal(t, 50.0+20000+7+1500+3+10000+2023+2, result.Prediction)
	assert.Equal(t, "33585.00%", result.Formatted)
	assert.Empty(t, result.Unseen)
	assert.Equal(t, -1, progress.events[len(progress.events)-1])
}

func TestPredictInputUnseenCity(t *testing.T) {
	model := &fakeModel{schema: testSchema}
	p, err := New(model)
	require.NoError(t, err)

	in := mumbai()
	in.City = "Hyderabad"
	result, err := p.PredictInput(context.Background(), in.Raw(), nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{50, 20000, 7, 1500, 3, 10000, 2023, 0, 0, 0, 1}, model.rows[0])
	assert.Equal(t, []feature.Unseen{{Field: feature.CityField, Value: "Hyderabad"}}, result.Unseen)
}

func TestPredictInferenceErrorClearsProgressFirst(t *testing.T) {
	boom := errors.New("dimension mismatch")
	p, err := New(&fakeModel{schema: testSchema, err: boom})
	require.NoError(t, err)

	progress := &recordingProgress{}
	_, err = p.PredictInput(context.Background(), mumbai().Raw(), progress)

	var inferr *InferenceError
	require.ErrorAs(t, err, &inferr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0, 50, -1}, progress.events)
}

func TestPredictRecoversModelPanic(t *testing.T) {
	p, err := New(&fakeModel{schema: testSchema, panic: true})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), p.Aligner().Align(mumbai().Raw()))
	var inferr *InferenceError
	assert.ErrorAs(t, err, &inferr)
}

func TestPredictRejectsForeignSchema(t *testing.T) {
	p, err := New(&fakeModel{schema: testSchema})
	require.NoError(t, err)

	vec := feature.NewVector(feature.Schema{feature.Year}, []float64{2023})
	_, err = p.Predict(context.Background(), vec)
	var inferr *InferenceError
	assert.ErrorAs(t, err, &inferr)
}

func TestPredictBatchExcludesTarget(t *testing.T) {
	model := &fakeModel{schema: feature.Schema{"a", "b"}}
	p, err := New(model)
	require.NoError(t, err)

	frame := &dataset.Frame{
		Columns: []string{"b", feature.TargetColumn, "a"},
		Data: [][]float64{
			{1, 99, 10},
			{2, 98, 20},
			{3, 97, 30},
		},
	}
	out, err := p.PredictBatch(context.Background(), frame)
	require.NoError(t, err)

	assert.Equal(t, []float64{11, 22, 33}, out)
	assert.Equal(t, [][]float64{{10, 1}, {20, 2}, {30, 3}}, model.rows)
}

func TestPredictBatchFailsWholeBatch(t *testing.T) {
	p, err := New(&fakeModel{schema: feature.Schema{"a"}, err: errors.New("bad row")})
	require.NoError(t, err)

	out, err := p.PredictBatch(context.Background(), &dataset.Frame{Columns: []string{"a"}, Data: [][]float64{{1}, {2}}})
	assert.Nil(t, out)
	var inferr *InferenceError
	require.ErrorAs(t, err, &inferr)
	assert.Equal(t, 0, inferr.Row)

	_, err = p.PredictBatch(context.Background(), &dataset.Frame{Columns: []string{"a", "z"}, Data: [][]float64{{1, 2}}})
	assert.ErrorAs(t, err, &inferr)
}

func TestPredictCache(t *testing.T) {
	model := &fakeModel{schema: testSchema}
	p, err := New(model, WithCache(8))
	require.NoError(t, err)

	first, err := p.PredictInput(context.Background(), mumbai().Raw(), nil)
	require.NoError(t, err)
	second, err := p.PredictInput(context.Background(), mumbai().Raw(), nil)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Prediction, second.Prediction)
	assert.Len(t, model.rows, 1)
}

func trainedModel(t *testing.T) *ml.TrainedModel {
	t.Helper()
	features := make([][]float64, 0, 30)
	targets := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		row := make([]float64, len(testSchema))
		row[0] = float64(10 + i)
		row[6] = float64(2015 + i%5)
		row[8] = float64(i % 2)
		features = append(features, row)
		targets = append(targets, 30+row[0]*0.5+row[8]*4)
	}
	forest := ml.NewRandomForest(ml.ForestParams{NEstimators: 8, Seed: 3})
	require.NoError(t, forest.Fit(context.Background(), features, targets))
	model, err := ml.NewTrainedModel(forest, testSchema, nil)
	require.NoError(t, err)
	model.Version = "test"
	return model
}

func TestPredictDeterministicOnFrozenModel(t *testing.T) {
	p, err := New(trainedModel(t))
	require.NoError(t, err)

	vec := p.Aligner().Align(mumbai().Raw())
	first, err := p.Predict(context.Background(), vec)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.Predict(context.Background(), vec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "test", p.Version())
}

func TestWatcherReloadsReplacedArtifact(t *testing.T) {
	model := trainedModel(t)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, ml.SaveModel(path, model))

	loaded := make(chan *ml.TrainedModel, 1)
	w, err := NewWatcher(path, func(m *ml.TrainedModel) { loaded <- m }, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	model.Version = "v2"
	require.NoError(t, ml.SaveModel(path, model))

	select {
	case m := <-loaded:
		assert.Equal(t, "v2", m.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("expected model reload")
	}
}

func TestFrameFromTableAlignsRawColumns(t *testing.T) {
	model := &fakeModel{schema: testSchema}
	p, err := New(model)
	require.NoError(t, err)

	header := append([]string{feature.CityField, feature.WasteTypeField}, feature.NumericFields()...)
	header = append(header, feature.TargetColumn)
	table := &dataset.Table{
		Columns: header,
		Rows: [][]string{
			{"Mumbai", "Plastic", "50", "20000", "7", "1500", "3", "10000", "2023", "61.2"},
			{"Hyderabad", "Organic", "10", "100", "1", "10", "0", "0", "2019", "40"},
			{"Delhi", "Plastic", "0", "0", "10", "0", "0", "0", "2020", "55"},
		},
	}
	frame, err := p.FrameFromTable(table)
	require.NoError(t, err)
	require.Equal(t, 3, frame.Len())
	assert.Equal(t, []string(testSchema), frame.Columns)
	assert.Equal(t, []float64{50, 20000, 7, 1500, 3, 10000, 2023, 0, 1, 0, 1}, frame.Data[0])
	assert.Equal(t, []float64{10, 100, 1, 10, 0, 0, 2019, 0, 0, 1, 0}, frame.Data[1])

	out, err := p.PredictBatch(context.Background(), frame)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestFrameFromTableRejectsUnknownColumns(t *testing.T) {
	p, err := New(&fakeModel{schema: testSchema})
	require.NoError(t, err)

	_, err = p.FrameFromTable(&dataset.Table{Columns: []string{"Rainfall"}, Rows: [][]string{{"1"}}})
	var inferr *InferenceError
	assert.ErrorAs(t, err, &inferr)

	_, err = p.FrameFromTable(&dataset.Table{Columns: []string{feature.Year}, Rows: [][]string{{"2020"}}})
	assert.ErrorAs(t, err, &inferr)

	_, err = p.FrameFromTable(&dataset.Table{Columns: []string{feature.Year}})
	assert.ErrorIs(t, err, dataset.ErrNoRows)
}
