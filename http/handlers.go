package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"recyclerate/ml"
	"recyclerate/training"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok", "model_loaded": false}
	if s, err := a.serving(); err == nil {
		resp["model_loaded"] = true
		resp["model_version"] = s.model.Version
	}
	respondJSON(w, http.StatusOK, resp)
}

type modelResponse struct {
	Version   string          `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	Features  []string        `json:"features"`
	Trees     int             `json:"trees"`
	Params    ml.ForestParams `json:"params"`
	Metrics   ml.Metrics      `json:"metrics"`
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	s, err := a.serving()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	m := s.model
	respondJSON(w, http.StatusOK, modelResponse{
		Version:   m.Version,
		TrainedAt: m.TrainedAt,
		Features:  m.Features,
		Trees:     m.TreeCount(),
		Params:    m.Params,
		Metrics:   m.Metrics,
	})
}

// handleCategories lists the accepted values of each categorical field,
// including the reference category that has no column of its own.
func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	s, err := a.serving()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	categories := make(map[string][]string)
	for _, field := range s.model.Fields() {
		values := field.Values
		if len(values) == 0 {
			values = s.model.Features.Categories(field.Name)
		}
		categories[field.Name] = values
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (a *API) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		respondError(w, http.StatusServiceUnavailable, "prediction history disabled")
		return
	}
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = l
	}

	records, err := a.store.RecentPredictions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
		"limit":       limit,
	})
}

func (a *API) handleTrainingLogs(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		respondError(w, http.StatusServiceUnavailable, "training log disabled")
		return
	}
	logs, err := a.store.LoadTrainingLog(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

func (a *API) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	if a.job == nil {
		respondError(w, http.StatusServiceUnavailable, "training disabled")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"running": a.job.Running(),
		"last":    a.job.LastStatus(),
	})
}

func (a *API) handleTrainingRun(w http.ResponseWriter, r *http.Request) {
	if a.job == nil {
		respondError(w, http.StatusServiceUnavailable, "training disabled")
		return
	}
	if err := a.job.Start(a.baseCtx); err != nil {
		if errors.Is(err, training.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
