// Package statusapi serves the capture daemon's HTTP interface.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/capture"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	Status  func() capture.Status
	Feed    http.HandlerFunc
	Metrics http.Handler
	Source  string
	Started time.Time
	Log     logrus.FieldLogger
}

type statusResponse struct {
	Message       string `json:"message"`
	Status        string `json:"status"`
	Source        string `json:"source"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Inverters     int    `json:"inverters"`
	TotalWatts    uint64 `json:"total_watts"`
}

// NewRouter wires the status, latest, websocket and metrics routes.
// Nil Feed or Metrics handlers leave their route unregistered.
func NewRouter(h Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/latest", h.latest).Methods(http.MethodGet)
	if h.Feed != nil {
		r.HandleFunc("/ws", h.Feed)
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods(http.MethodGet)
	}

	return r
}

func (h Handlers) root(w http.ResponseWriter, r *http.Request) {
	status := h.Status()
	h.writeJSON(w, http.StatusOK, statusResponse{
		Message:       "Enphase Inverter Capture",
		Status:        "running",
		Source:        h.Source,
		UptimeSeconds: int64(time.Since(h.Started).Seconds()),
		Inverters:     len(status.Inverters),
		TotalWatts:    status.TotalWatts,
	})
}

func (h Handlers) latest(w http.ResponseWriter, r *http.Request) {
	status := h.Status()
	if len(status.Inverters) == 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "No readings available yet",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h Handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && h.Log != nil {
		h.Log.WithError(err).Debug("Failed to write response")
	}
}
