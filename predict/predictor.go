package predict

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"recyclerate/dataset"
	"recyclerate/feature"
	"recyclerate/metrics"
)

// Model is the inference surface the predictor depends on. ml.TrainedModel
// implements it; tests substitute their own.
type Model interface {
	Schema() feature.Schema
	Predict(features []float64) (float64, error)
}

type fieldProvider interface {
	Fields() []feature.CategoricalField
}

type versionProvider interface {
	ModelVersion() string
}

type Option func(*options)

type options struct {
	logger    *zap.Logger
	cacheSize int
	fields    []feature.CategoricalField
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCache keeps up to size single-row predictions keyed by the aligned
// vector. Size 0 disables caching.
func WithCache(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithFields overrides the categorical fields declared by the model.
func WithFields(fields []feature.CategoricalField) Option {
	return func(o *options) {
		o.fields = fields
	}
}

// Result is a shaped single prediction.
type Result struct {
	Prediction   float64          `json:"prediction"`
	Formatted    string           `json:"formatted"`
	ModelVersion string           `json:"model_version,omitempty"`
	Unseen       []feature.Unseen `json:"unseen_categories,omitempty"`
	Cached       bool             `json:"cached"`
}

// Predictor aligns inputs and invokes a loaded model. The model is read only;
// a Predictor is safe for concurrent use.
type Predictor struct {
	model   Model
	schema  feature.Schema
	aligner *feature.Aligner
	version string
	cache   *lru.Cache[string, float64]
	logger  *zap.Logger
}

func New(model Model, opts ...Option) (*Predictor, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	schema := model.Schema()
	if len(schema) == 0 {
		return nil, fmt.Errorf("model exposes an empty feature schema")
	}
	fields := o.fields
	if fields == nil {
		if fp, ok := model.(fieldProvider); ok {
			fields = fp.Fields()
		}
	}
	if len(fields) == 0 {
		for _, name := range feature.CategoricalFields() {
			fields = append(fields, feature.CategoricalField{Name: name})
		}
	}

	p := &Predictor{
		model:   model,
		schema:  schema,
		aligner: feature.NewAligner(schema, fields),
		logger:  o.logger,
	}
	if vp, ok := model.(versionProvider); ok {
		p.version = vp.ModelVersion()
	}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, float64](o.cacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

func (p *Predictor) Model() Model {
	return p.model
}

func (p *Predictor) Schema() feature.Schema {
	return p.schema
}

func (p *Predictor) Aligner() *feature.Aligner {
	return p.aligner
}

func (p *Predictor) Version() string {
	return p.version
}

// Align maps in onto the model schema and records unseen categories.
func (p *Predictor) Align(in feature.RawInput) (feature.Vector, []feature.Unseen) {
	vec, unseen := p.aligner.AlignDetailed(in)
	for _, u := range unseen {
		metrics.UnseenCategories.WithLabelValues(u.Field).Inc()
		p.logger.Warn("unseen category aligned as baseline",
			zap.String("field", u.Field),
			zap.String("value", u.Value))
	}
	return vec, unseen
}

// Predict returns the forecast for one aligned vector.
func (p *Predictor) Predict(ctx context.Context, vec feature.Vector) (float64, error) {
	value, _, err := p.predictVector(ctx, vec)
	return value, err
}

// PredictInput aligns in, predicts and shapes the result. progress may be nil;
// it is cleared before PredictInput returns.
func (p *Predictor) PredictInput(ctx context.Context, in feature.RawInput, progress Progress) (*Result, error) {
	if progress == nil {
		progress = NopProgress
	}
	defer progress.Clear()

	progress.Update(0)
	vec, unseen := p.Align(in)
	progress.Update(50)

	value, cached, err := p.predictVector(ctx, vec)
	if err != nil {
		return nil, err
	}
	progress.Update(100)

	return &Result{
		Prediction:   value,
		Formatted:    FormatRate(value),
		ModelVersion: p.version,
		Unseen:       unseen,
		Cached:       cached,
	}, nil
}

// PredictBatch scores every row of frame in order. The target column is
// excluded when present; the remaining columns must match the schema exactly.
// Any row failure fails the whole batch.
func (p *Predictor) PredictBatch(ctx context.Context, frame *dataset.Frame) ([]float64, error) {
	start := time.Now()
	features := frame.Drop(feature.TargetColumn)
	if !p.schema.SameSet(features.Columns) {
		metrics.PredictionErrors.WithLabelValues("batch").Inc()
		return nil, &InferenceError{Row: -1, Err: schemaMismatch(p.schema, features.Columns)}
	}
	ordered, _ := features.Reindex(p.schema)

	out := make([]float64, len(ordered.Data))
	for i, row := range ordered.Data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := p.invoke(row)
		if err != nil {
			metrics.PredictionErrors.WithLabelValues("batch").Inc()
			return nil, &InferenceError{Row: i, Err: err}
		}
		out[i] = value
	}

	metrics.PredictionsTotal.WithLabelValues("batch").Add(float64(len(out)))
	metrics.PredictionDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	p.logger.Info("batch scored", zap.Int("rows", len(out)), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (p *Predictor) predictVector(ctx context.Context, vec feature.Vector) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if !p.schema.SameSet(vec.Schema()) {
		metrics.PredictionErrors.WithLabelValues("single").Inc()
		return 0, false, &InferenceError{Row: -1, Err: schemaMismatch(p.schema, vec.Schema())}
	}
	row := orderRow(p.schema, vec)

	key := ""
	if p.cache != nil {
		key = cacheKey(row)
		if value, ok := p.cache.Get(key); ok {
			metrics.CacheHits.Inc()
			metrics.PredictionsTotal.WithLabelValues("single").Inc()
			return value, true, nil
		}
		metrics.CacheMisses.Inc()
	}

	start := time.Now()
	value, err := p.invoke(row)
	metrics.PredictionDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PredictionErrors.WithLabelValues("single").Inc()
		return 0, false, &InferenceError{Row: -1, Err: err}
	}
	metrics.PredictionsTotal.WithLabelValues("single").Inc()

	if p.cache != nil {
		p.cache.Add(key, value)
	}
	return value, false, nil
}

func (p *Predictor) invoke(row []float64) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return p.model.Predict(row)
}

func FormatRate(value float64) string {
	return fmt.Sprintf("%.2f%%", value)
}

func orderRow(schema feature.Schema, vec feature.Vector) []float64 {
	values := vec.Values()
	same := true
	for i, name := range vec.Schema() {
		if schema[i] != name {
			same = false
			break
		}
	}
	if same {
		return values
	}
	byName := vec.Map()
	row := make([]float64, len(schema))
	for i, name := range schema {
		row[i] = byName[name]
	}
	return row
}

func cacheKey(row []float64) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

func schemaMismatch(schema feature.Schema, columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var missing, unexpected []string
	for _, name := range schema {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	for _, c := range columns {
		if !schema.Contains(c) {
			unexpected = append(unexpected, c)
		}
	}
	return fmt.Errorf("feature columns do not match model schema (missing %v, unexpected %v)", missing, unexpected)
}
