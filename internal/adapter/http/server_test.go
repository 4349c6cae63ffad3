package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/lorawan-telemetry-service/internal/adapter/http"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/domain"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/ingest"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the Postgres store, enforcing
// unique_id the way the database constraint does. It backs both the write
// path (ingest.Store) and the read path (httpadapter.ReadingStore).
type memStore struct {
	mu        sync.Mutex
	readings  []domain.SensorReading
	byKey     map[string]bool
	insertErr error
	queryErr  error
	pingErr   error
}

func newMemStore() *memStore {
	return &memStore{byKey: make(map[string]bool)}
}

func (m *memStore) Insert(_ context.Context, reading domain.SensorReading) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if reading.UniqueID != "" && m.byKey[reading.UniqueID] {
		return false, nil
	}
	m.byKey[reading.UniqueID] = true
	m.readings = append(m.readings, reading)
	return true, nil
}

func (m *memStore) Exists(_ context.Context, uniqueID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[uniqueID], nil
}

func (m *memStore) Ping(_ context.Context) error { return m.pingErr }

func (m *memStore) forDevice(deviceID string) []domain.SensorReading {
	var out []domain.SensorReading
	for _, r := range m.readings {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out
}

func (m *memStore) FindLatest(_ context.Context, deviceID string) (domain.SensorReading, bool, error) {
	if m.queryErr != nil {
		return domain.SensorReading{}, false, m.queryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	readings := m.forDevice(deviceID)
	if len(readings) == 0 {
		return domain.SensorReading{}, false, nil
	}
	return readings[0], true, nil
}

func (m *memStore) FindRange(_ context.Context, deviceID string, start, end time.Time, limit, offset int) ([]domain.SensorReading, int, error) {
	if m.queryErr != nil {
		return nil, 0, m.queryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.SensorReading
	for _, r := range m.forDevice(deviceID) {
		if !start.IsZero() && r.ReceivedAt.Before(start) {
			continue
		}
		if !end.IsZero() && r.ReceivedAt.After(end) {
			continue
		}
		matched = append(matched, r)
	}
	total := len(matched)
	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memStore) FindRecent(_ context.Context, deviceID string, limit int) ([]domain.SensorReading, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	readings := m.forDevice(deviceID)
	if limit > 0 && len(readings) > limit {
		readings = readings[:limit]
	}
	return readings, nil
}

func newTestServer(store *memStore) *httpadapter.Server {
	ing := ingest.New(store, nil, slog.Default(), observability.NewMetricsForTesting())
	return httpadapter.NewServer(":0", ing, store, slog.Default())
}

func doRequest(srv *httpadapter.Server, method, target string, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	srv.ServeHTTP(rec, req)
	return rec
}

func uplinkBody(deviceID string, fCnt int64, receivedAt string, temperature float64) string {
	return fmt.Sprintf(`{
		"end_device_ids": {"device_id": %q, "application_ids": {"application_id": "greenhouse-sensors"}},
		"received_at": %q,
		"uplink_message": {
			"f_port": 1, "f_cnt": %d,
			"decoded_payload": {"temperature": %g, "humidity": 48.2, "counter": %d},
			"rx_metadata": [{"gateway_ids": {"gateway_id": "gw-roof"}, "rssi": -72, "snr": 9.5}]
		}
	}`, deviceID, receivedAt, fCnt, temperature, fCnt)
}

func seedReadings(t *testing.T, srv *httpadapter.Server, deviceID string, n int) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	for i := range n {
		ts := base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano)
		rec := doRequest(srv, http.MethodPost, "/ttn", uplinkBody(deviceID, int64(i), ts, 20+float64(i)))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

// --- webhook ---

func TestWebhook_StoresReading(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)

	rec := doRequest(srv, http.MethodPost, "/ttn", uplinkBody("greenhouse-01", 42, "2024-04-26T15:10:00Z", 21.5))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "reading stored", resp["message"])
	assert.Len(t, resp["unique_id"], 16)
	assert.Len(t, store.readings, 1)
}

func TestWebhook_DuplicateSuppressed(t *testing.T) {
	srv := newTestServer(newMemStore())
	body := uplinkBody("greenhouse-01", 42, "2024-04-26T15:10:00Z", 21.5)

	first := doRequest(srv, http.MethodPost, "/ttn", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(srv, http.MethodPost, "/ttn", body)
	assert.Equal(t, http.StatusOK, second.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "duplicate uplink suppressed", resp["message"])
}

func TestWebhook_InvalidJSON(t *testing.T) {
	srv := newTestServer(newMemStore())

	rec := doRequest(srv, http.MethodPost, "/ttn", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestWebhook_DataQualityNeverRejected(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)

	t.Run("out-of-range temperature persisted", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/ttn", uplinkBody("oven-01", 1, "2024-04-26T15:10:00Z", 150))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, store.readings, 1)
		assert.Equal(t, 150.0, store.readings[0].TemperatureCelsius)
	})

	t.Run("missing identity still accepted", func(t *testing.T) {
		rec := doRequest(srv, http.MethodPost, "/ttn", `{"uplink_message": {"f_cnt": 9}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestWebhook_StoreFailureIs500(t *testing.T) {
	store := newMemStore()
	store.insertErr = errors.New("connection refused")
	srv := newTestServer(store)

	rec := doRequest(srv, http.MethodPost, "/ttn", uplinkBody("greenhouse-01", 1, "2024-04-26T15:10:00Z", 21))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

// --- latest ---

func TestLatest(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)

	t.Run("missing device_id", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/latest", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown device is 404", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/latest?device_id=ghost", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "no readings")
	})

	t.Run("returns newest reading", func(t *testing.T) {
		seedReadings(t, srv, "greenhouse-01", 3)

		rec := doRequest(srv, http.MethodGet, "/api/sensor/latest?device_id=greenhouse-01", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var reading domain.SensorReading
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
		assert.Equal(t, "greenhouse-01", reading.DeviceID)
		assert.Equal(t, 22.0, reading.TemperatureCelsius) // newest of 20, 21, 22
	})
}

// --- readings ---

func TestReadings(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)
	seedReadings(t, srv, "greenhouse-01", 5)

	t.Run("paginated envelope", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/readings?device_id=greenhouse-01&limit=2&skip=1", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Total int                    `json:"total"`
			Limit int                    `json:"limit"`
			Skip  int                    `json:"skip"`
			Data  []domain.SensorReading `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5, resp.Total)
		assert.Equal(t, 2, resp.Limit)
		assert.Equal(t, 1, resp.Skip)
		require.Len(t, resp.Data, 2)
		// Newest first; skip=1 drops the newest.
		assert.Equal(t, 23.0, resp.Data[0].TemperatureCelsius)
	})

	t.Run("empty result is an empty array, not null", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/readings?device_id=ghost", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
		assert.Contains(t, rec.Body.String(), `"total":0`)
	})

	t.Run("invalid start_date", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/readings?device_id=greenhouse-01&start_date=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/readings?device_id=greenhouse-01&limit=-3", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// --- statistics ---

func TestStatistics(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)

	t.Run("no data is 404", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/statistics?device_id=ghost", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "no data")
	})

	t.Run("invalid period", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/statistics?device_id=x&period=90d", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exact aggregates over known values", func(t *testing.T) {
		seedReadings(t, srv, "greenhouse-01", 3) // temperatures 20, 21, 22

		rec := doRequest(srv, http.MethodGet, "/api/sensor/statistics?device_id=greenhouse-01&period=24h", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			DeviceID   string            `json:"device_id"`
			Period     string            `json:"period"`
			Statistics domain.Statistics `json:"statistics"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "greenhouse-01", resp.DeviceID)
		assert.Equal(t, "24h", resp.Period)
		assert.Equal(t, 3, resp.Statistics.SampleCount)
		assert.Equal(t, 20.0, resp.Statistics.Temperature.Min)
		assert.Equal(t, 22.0, resp.Statistics.Temperature.Max)
		assert.InDelta(t, 21.0, resp.Statistics.Temperature.Mean, 1e-9)
		// 24h at one uplink per 2 minutes.
		assert.Equal(t, 720, resp.Statistics.ExpectedPackets)
	})

	t.Run("period defaults to 24h", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/statistics?device_id=greenhouse-01", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"period":"24h"`)
	})
}

// --- quality ---

func TestQuality(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)

	t.Run("no readings is 404", func(t *testing.T) {
		rec := doRequest(srv, http.MethodGet, "/api/sensor/quality?device_id=ghost", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("classifies the recent sample", func(t *testing.T) {
		seedReadings(t, srv, "greenhouse-01", 4) // all RSSI -72

		rec := doRequest(srv, http.MethodGet, "/api/sensor/quality?device_id=greenhouse-01", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			DeviceID string               `json:"device_id"`
			Quality  domain.SignalQuality `json:"quality"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.SignalGood, resp.Quality.Rating)
		assert.Equal(t, -72.0, resp.Quality.LatestRSSI)
		assert.Equal(t, 4, resp.Quality.SampleCount)
		assert.Equal(t, 4, resp.Quality.Distribution[domain.SignalGood])
	})
}

// --- ops ---

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(newMemStore())

	for _, path := range []string{"/health", "/healthz"} {
		rec := doRequest(srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "healthy")
	}
}

func TestReadyz(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store)

	rec := doRequest(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	store.pingErr = errors.New("no connection")
	rec = doRequest(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(newMemStore())

	rec := doRequest(srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
