package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"recyclerate/dataset"
	"recyclerate/db"
	"recyclerate/feature"
	"recyclerate/predict"
)

type predictResponse struct {
	*predict.Result
	RequestID string `json:"request_id,omitempty"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	s, err := a.serving()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var in feature.WasteInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := a.validate.Struct(in); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: validationDetails(err),
		})
		return
	}

	requestID := GetRequestID(r.Context())
	result, err := s.predictor.PredictInput(r.Context(), in.Raw(), nil)
	if err != nil {
		a.logger.Error("prediction failed", zap.String("request_id", requestID), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "error in prediction: " + err.Error(),
			RequestID: requestID,
		})
		return
	}

	a.record(r, requestID, in, result)
	respondJSON(w, http.StatusOK, predictResponse{Result: result, RequestID: requestID})
}

func (a *API) record(r *http.Request, requestID string, in feature.WasteInput, result *predict.Result) {
	if a.store == nil {
		return
	}
	err := a.store.SavePrediction(r.Context(), &db.PredictionRecord{
		RequestID:    requestID,
		Input:        in,
		Prediction:   result.Prediction,
		ModelVersion: result.ModelVersion,
		Unseen:       result.Unseen,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("failed to record prediction", zap.String("request_id", requestID), zap.Error(err))
	}
}

// handlePredictBatch scores a CSV body and answers with a one-column CSV in
// input order. The optional "encoding" query parameter names the body charset.
func (a *API) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	s, err := a.serving()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	table, err := dataset.ReadCSV(http.MaxBytesReader(w, r.Body, a.maxBatchBytes), r.URL.Query().Get("encoding"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	frame, err := s.predictor.FrameFromTable(table)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	predictions, err := s.predictor.PredictBatch(r.Context(), frame)
	if err != nil {
		status := http.StatusInternalServerError
		var inferr *predict.InferenceError
		if errors.As(err, &inferr) && inferr.Row < 0 {
			status = http.StatusBadRequest
		}
		respondError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
	if err := dataset.EncodePredictions(w, predictions); err != nil {
		a.logger.Error("failed to write batch response", zap.Error(err))
	}
}
