package http

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"recyclerate/db"
	"recyclerate/ml"
	"recyclerate/predict"
	"recyclerate/training"
)

var errModelNotLoaded = errors.New("model not loaded")

// serving pairs a loaded model with the predictor built for it so both are
// swapped together on reload.
type serving struct {
	model     *ml.TrainedModel
	predictor *predict.Predictor
}

type Options struct {
	Store          *db.Store
	Job            *training.Job
	Logger         *zap.Logger
	CacheSize      int
	MaxBatchBytes  int64
	AllowedOrigins []string
	// BaseContext bounds background work started by requests, such as
	// training runs. Defaults to context.Background().
	BaseContext context.Context
}

// API holds the handler dependencies. The serving model is replaced
// atomically so in-flight requests finish on the model they started with.
type API struct {
	current       atomic.Pointer[serving]
	store         *db.Store
	job           *training.Job
	logger        *zap.Logger
	cacheSize     int
	maxBatchBytes int64
	baseCtx       context.Context
	validate      *validator.Validate
	upgrader      websocket.Upgrader
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBatchBytes <= 0 {
		opts.MaxBatchBytes = 10 << 20
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	origins := opts.AllowedOrigins
	return &API{
		store:         opts.Store,
		job:           opts.Job,
		logger:        opts.Logger,
		cacheSize:     opts.CacheSize,
		maxBatchBytes: opts.MaxBatchBytes,
		baseCtx:       opts.BaseContext,
		validate:      newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || originAllowed(origins, origin)
			},
		},
	}
}

// SetModel builds a predictor for model and puts it into service.
func (a *API) SetModel(model *ml.TrainedModel) error {
	p, err := predict.New(model,
		predict.WithLogger(a.logger.Named("predict")),
		predict.WithCache(a.cacheSize))
	if err != nil {
		return err
	}
	a.current.Store(&serving{model: model, predictor: p})
	a.logger.Info("serving model",
		zap.String("version", model.Version),
		zap.Int("features", len(model.Features)),
		zap.Int("trees", model.TreeCount()))
	return nil
}

func (a *API) serving() (*serving, error) {
	s := a.current.Load()
	if s == nil {
		return nil, errModelNotLoaded
	}
	return s, nil
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("POST /api/predict/batch", a.handlePredictBatch)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/model/categories", a.handleCategories)
	mux.HandleFunc("GET /api/predictions", a.handlePredictions)
	mux.HandleFunc("GET /api/training/logs", a.handleTrainingLogs)
	mux.HandleFunc("GET /api/training/status", a.handleTrainingStatus)
	mux.HandleFunc("POST /api/training/run", a.handleTrainingRun)
	mux.HandleFunc("GET /api/ws/predict", a.handlePredictWS)
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fe.Field()] = rule
	}
	return details
}

type errorResponse struct {
	Error     string            `json:"error"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
