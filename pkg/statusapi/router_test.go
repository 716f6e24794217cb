package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/capture"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h Handlers, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestLatestWithoutReadings(t *testing.T) {
	h := Handlers{Status: func() capture.Status { return capture.Status{} }, Started: time.Now()}

	rec := serve(t, h, http.MethodGet, "/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No readings available yet")
}

func TestLatestReturnsStatus(t *testing.T) {
	at := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	status := capture.Status{
		Time:       at,
		Inverters:  []types.StoredReading{{ReportTime: at, Serial: 1, Watts: 200}, {ReportTime: at, Serial: 2, Watts: 180}},
		Counters:   capture.Counters{Cycles: 12, Stored: 2},
		TotalWatts: 380,
	}
	h := Handlers{Status: func() capture.Status { return status }, Started: time.Now()}

	rec := serve(t, h, http.MethodGet, "/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got capture.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Inverters, 2)
	assert.Equal(t, uint64(380), got.TotalWatts)
	assert.Equal(t, uint64(12), got.Counters.Cycles)
}

func TestRoot(t *testing.T) {
	h := Handlers{
		Status:  func() capture.Status { return capture.Status{TotalWatts: 90} },
		Source:  "gateway",
		Started: time.Now().Add(-time.Minute),
	}

	rec := serve(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, "gateway", got.Source)
	assert.Equal(t, uint64(90), got.TotalWatts)
	assert.GreaterOrEqual(t, got.UptimeSeconds, int64(59))
}

func TestOptionalRoutes(t *testing.T) {
	h := Handlers{Status: func() capture.Status { return capture.Status{} }, Started: time.Now()}
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodPost, "/latest").Code)

	h.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	})
	rec := serve(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}
