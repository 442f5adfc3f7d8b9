package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/telemetry"
)

type staticSource []byte

func (s staticSource) Latest() []byte { return s }

func newTestServer(t *testing.T, source SnapshotSource) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	m.Deposits.Add(3)

	return NewServer(source, Options{
		ArchiveDir:     filepath.Join(dir, "snapshots"),
		LiveConfigPath: filepath.Join(dir, "live_config.yaml"),
		LiveBase:       config.Default().Live(),
		Gatherer:       reg,
	}), dir
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDataFallback(t *testing.T) {
	s, _ := newTestServer(t, staticSource(nil))
	rec := do(t, s, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"grid":[],"drones":{},"mood":"NO_SIMULATION"}`, rec.Body.String())
}

func TestDataServesSnapshot(t *testing.T) {
	snapshot := `{"grid":[[0,1]],"drones":{"A1":{"x":5,"y":5}},"mood":"CALM"}`
	s, _ := newTestServer(t, staticSource(snapshot))
	rec := do(t, s, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, snapshot, rec.Body.String())
}

func TestArchives(t *testing.T) {
	s, dir := newTestServer(t, nil)
	archives := filepath.Join(dir, "snapshots")

	rec := do(t, s, http.MethodGet, "/api/archives", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, os.MkdirAll(archives, 0755))
	name := "hive_state_ARCHIVE_2026-05-06_070809.json"
	require.NoError(t, os.WriteFile(filepath.Join(archives, name), []byte(`{"mood":"CALM"}`), 0644))

	rec = do(t, s, http.MethodGet, "/api/archives", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []telemetry.ArchiveInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, name, list[0].Name)
	assert.Equal(t, int64(15), list[0].Size)

	rec = do(t, s, http.MethodGet, "/api/archives/"+name, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mood":"CALM"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/archives/hive_state_ARCHIVE_missing.json", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/archives/secrets.txt", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	s, dir := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.Live
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, config.Default().Live(), got)

	// Partial update, with an out-of-range decay rate
	rec = do(t, s, http.MethodPost, "/config", `{"decay_rate":3,"death_mode":"respawn"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1.0, got.DecayRate)
	assert.Equal(t, "respawn", got.DeathMode)
	assert.Equal(t, config.Default().Live().DepositAmount, got.DepositAmount)

	onDisk, err := config.LoadLive(filepath.Join(dir, "live_config.yaml"), config.Live{})
	require.NoError(t, err)
	assert.Equal(t, got, onDisk)

	rec = do(t, s, http.MethodPost, "/config", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slimehive_deposits_total 3")
}
