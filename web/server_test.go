package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsim/models"
	"trafficsim/sim"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := sim.DefaultConfig()
	cfg.NumIntersections = 2
	cfg.SpawnRate = 0
	cfg.Seed = 1
	return NewServer(sim.New(cfg, sim.UniformRates(0)), t.TempDir())
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Intersections, 2)
	assert.False(t, snap.Metrics.Running)
}

func TestStartStopResetEndpoints(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := doJSON(t, r, http.MethodPost, "/api/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.Sim.Running())

	w = doJSON(t, r, http.MethodPost, "/api/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.Sim.Running())

	w = doJSON(t, r, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, s.Sim.SimTime())
}

func TestAddPriorityVehicleEndpoint(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := doJSON(t, r, http.MethodPost, "/api/vehicles/priority", gin.H{
		"intersection_id": "intersection_1",
		"approach":        "east",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success   bool   `json:"success"`
		VehicleID string `json:"vehicle_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.VehicleID)

	w = doJSON(t, r, http.MethodPost, "/api/vehicles/priority", gin.H{
		"intersection_id": "intersection_9",
		"approach":        "east",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/vehicles/priority", gin.H{
		"approach": "east",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverrideEndpoint(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := doJSON(t, r, http.MethodPost, "/api/override", gin.H{
		"intersection_id": "intersection_1",
		"approach":        "north",
		"signal":          "red",
		"duration":        30.0,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// mode defaults to manual when omitted
	st, err := s.Sim.SignalStatus("intersection_1", "north")
	require.NoError(t, err)
	assert.Equal(t, models.Red, st.Signal)
	assert.Equal(t, models.ModeManual, st.Mode)

	w = doJSON(t, r, http.MethodPost, "/api/override", gin.H{
		"intersection_id": "intersection_1",
		"approach":        "north",
		"signal":          "purple",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/override", gin.H{
		"intersection_id": "intersection_1",
		"approach":        "north",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearOverrideEndpoint(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()
	require.NoError(t, s.Sim.SubmitOverride("intersection_1", "north", "red", "manual", nil))

	w := doJSON(t, r, http.MethodPost, "/api/override/clear", gin.H{
		"intersection_id": "intersection_1",
		"approach":        "north",
	})
	require.Equal(t, http.StatusOK, w.Code)

	st, err := s.Sim.SignalStatus("intersection_1", "north")
	require.NoError(t, err)
	assert.Equal(t, models.ModeAutomatic, st.Mode)
}

func TestSummaryEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Sim.SubmitOverride("intersection_1", "north", "red", "manual", nil))

	w := doJSON(t, s.Router(), http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.ControlSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 8, summary.TotalSignals)
	assert.Equal(t, 1, summary.ManualSignals)
	assert.Equal(t, 7, summary.AutomaticSignals)
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.StatisticsDir, "run.csv"), []byte("a,b\n1,2\n"), 0o644))

	w := doJSON(t, s.Router(), http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Files []map[string]string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "run.csv", resp.Files[0]["name"])
}

func TestCsvDataEndpoint(t *testing.T) {
	s := newTestServer(t)
	path := filepath.Join(s.StatisticsDir, "run.csv")
	require.NoError(t, os.WriteFile(path, []byte("step,queued\n1,4\n2,6\n"), 0o644))

	w := doJSON(t, s.Router(), http.MethodGet, "/api/csv-data?file="+path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Headers []string            `json:"headers"`
		Rows    []map[string]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"step", "queued"}, resp.Headers)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "4", resp.Rows[0]["queued"])
}

func TestCsvDataRejectsOutsidePath(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s.Router(), http.MethodGet, "/api/csv-data?file=/etc/passwd", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s.Router(), http.MethodGet, "/api/csv-data", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
