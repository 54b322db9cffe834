package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"recyclerate/config"
	"recyclerate/db"
	"recyclerate/feature"
	"recyclerate/ml"
	"recyclerate/training"
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
	"Waste Type_Plastic",
}

func testModel(t *testing.T) *ml.TrainedModel {
	t.Helper()
	var features [][]float64
	var targets []float64
	for i := 0; i < 40; i++ {
		row := make([]float64, len(testSchema))
		row[0] = float64(10 + i)
		row[2] = float64(1 + i%10)
		row[6] = float64(2018 + i%6)
		switch i % 3 {
		case 1:
			row[7] = 1
		case 2:
			row[8] = 1
		}
		row[9] = float64(i % 2)
		features = append(features, row)
		targets = append(targets, 25+row[2]*3+row[9]*5)
	}
	forest := ml.NewRandomForest(ml.ForestParams{NEstimators: 6, MaxDepth: 6, Seed: 42})
	if err := forest.Fit(context.Background(), features, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}
	model, err := ml.NewTrainedModel(forest, testSchema, []feature.CategoricalField{
		{Name: feature.CityField, Values: []string{"Bengaluru", "Delhi", "Mumbai"}},
		{Name: feature.WasteTypeField, Values: []string{"Organic", "Plastic"}},
	})
	if err != nil {
		t.Fatalf("package model: %v", err)
	}
	model.Version = "test-version"
	return model
}

type testEnv struct {
	api     *API
	store   *db.Store
	handler http.Handler
}

func newTestEnv(t *testing.T, withModel bool, job *training.Job) *testEnv {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api := NewAPI(Options{Store: store, Job: job, CacheSize: 16})
	if withModel {
		if err := api.SetModel(testModel(t)); err != nil {
			t.Fatalf("set model: %v", err)
		}
	}
	cfg := config.Default().HTTP
	cfg.RateLimit = 0
	server := NewServer(cfg, api, nil)
	return &testEnv{api: api, store: store, handler: server.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return payload
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, false, nil)
	w := env.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	if payload["status"] != "ok" || payload["model_loaded"] != false {
		t.Fatalf("unexpected body: %v", payload)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}

	env = newTestEnv(t, true, nil)
	payload = decodeBody(t, env.do(t, http.MethodGet, "/api/health", ""))
	if payload["model_version"] != "test-version" {
		t.Fatalf("unexpected model version: %v", payload["model_version"])
	}
}

func TestModelEndpointsWithoutModel(t *testing.T) {
	env := newTestEnv(t, false, nil)
	for _, path := range []string{"/api/model", "/api/model/categories"} {
		if w := env.do(t, http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, w.Code)
		}
	}
	if w := env.do(t, http.MethodPost, "/api/predict", `{}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("predict: expected 503, got %d", w.Code)
	}
}

func TestModelInfo(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(t, http.MethodGet, "/api/model", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var info modelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if info.Version != "test-version" || info.Trees != 6 || len(info.Features) != len(testSchema) {
		t.Fatalf("unexpected model info: %+v", info)
	}
}

func TestCategoriesIncludeReferenceCategory(t *testing.T) {
	env := newTestEnv(t, true, nil)
	w := env.do(t, http.MethodGet, "/api/model/categories", "")
	var payload struct {
		Categories map[string][]string `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	cities := payload.Categories[feature.CityField]
	if len(cities) != 3 || cities[0] != "Bengaluru" {
		t.Fatalf("unexpected cities: %v", cities)
	}
}

func TestPredictionsLimitValidation(t *testing.T) {
	env := newTestEnv(t, true, nil)
	if w := env.do(t, http.MethodGet, "/api/predictions?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/predictions?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if payload := decodeBody(t, w); payload["count"].(float64) != 0 {
		t.Fatalf("expected empty history, got %v", payload)
	}
}

func TestTrainingEndpoints(t *testing.T) {
	env := newTestEnv(t, false, nil)
	if w := env.do(t, http.MethodPost, "/api/training/run", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without job, got %d", w.Code)
	}

	dir := t.TempDir()
	job := training.NewJob(training.Config{
		DataPath:  filepath.Join(dir, "absent.csv"),
		ModelPath: filepath.Join(dir, "model.json"),
		Train:     ml.DefaultTrainConfig(),
	}, nil, nil)
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected run without dataset to fail")
	}

	env = newTestEnv(t, false, job)
	w := env.do(t, http.MethodGet, "/api/training/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	last, ok := payload["last"].(map[string]interface{})
	if !ok || last["error"] == "" {
		t.Fatalf("expected last run error, got %v", payload)
	}

	if w := env.do(t, http.MethodGet, "/api/training/logs", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t, true, nil)
	if w := env.do(t, http.MethodGet, "/api/predict", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware([]string{"https://example.org"})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://example.org" {
		t.Fatalf("missing allow-origin header")
	}
}
