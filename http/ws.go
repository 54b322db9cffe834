package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"recyclerate/feature"
	"recyclerate/metrics"
	"recyclerate/predict"
)

const (
	wsWriteWait      = 10 * time.Second
	wsIdleTimeout    = 5 * time.Minute
	wsMaxMessageSize = 64 << 10
)

// Message types sent on the prediction socket. Every request ends with a
// "clear" followed by exactly one "result" or "error".
const (
	wsProgress = "progress"
	wsClear    = "clear"
	wsResult   = "result"
	wsError    = "error"
)

type wsMessage struct {
	Type    string            `json:"type"`
	Percent *int              `json:"percent,omitempty"`
	Result  *predict.Result   `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// handlePredictWS serves interactive predictions with progress updates. Each
// text frame carries one WasteInput.
func (a *API) handlePredictWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	requestID := GetRequestID(r.Context())
	logger := a.logger.With(zap.String("request_id", requestID))
	conn.SetReadLimit(wsMaxMessageSize)

	send := func(msg wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		var in feature.WasteInput
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		s, err := a.serving()
		if err != nil {
			if !send(wsMessage{Type: wsError, Error: err.Error()}) {
				return
			}
			continue
		}
		if err := a.validate.Struct(in); err != nil {
			if !send(wsMessage{Type: wsError, Error: "validation failed", Details: validationDetails(err)}) {
				return
			}
			continue
		}

		alive := true
		progress := predict.ProgressFunc(func(percent int) {
			if !alive {
				return
			}
			if percent < 0 {
				alive = send(wsMessage{Type: wsClear})
				return
			}
			p := percent
			alive = send(wsMessage{Type: wsProgress, Percent: &p})
		})

		result, err := s.predictor.PredictInput(r.Context(), in.Raw(), progress)
		if !alive {
			return
		}
		if err != nil {
			logger.Error("prediction failed", zap.Error(err))
			if !send(wsMessage{Type: wsError, Error: "error in prediction: " + err.Error()}) {
				return
			}
			continue
		}
		a.record(r, requestID, in, result)
		if !send(wsMessage{Type: wsResult, Result: result}) {
			return
		}
	}
}
