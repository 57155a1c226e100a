package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const seededDoctor = "7d1c3a52-1b4e-4f57-9a0e-3f2b8c6d9e01"

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, m := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.ObserveOperation("appointment.create", "ok")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `clinic_scheduling_operations_total{operation="appointment.create",outcome="ok"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestNewHandlerInMemory(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		LockBackend:        appconfig.LockBackendLocal,
		LocalTimezone:      "UTC",
		DirectorySeedFile:  "../../internal/app/bootstrap/testdata/directory.json",
		RateLimitPerMinute: 100,
	}
	rt, err := bootstrap.BuildRuntime(t.Context(), cfg, logger)
	require.NoError(t, err)
	defer rt.Close()

	h, err := newHandler(cfg, rt, logger)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	body, _ := json.Marshal(map[string]any{
		"dayOfWeek": "FRIDAY", "isWorkingDay": true, "appointmentDurationMinutes": 30, "shiftType": "FULL_DAY",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/doctor-schedules/"+seededDoctor, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `operation="schedule.create",outcome="ok"`))

	// no audit store in memory mode
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/appointments/"+seededDoctor+"/history", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewHandlerRejectsBadZone(t *testing.T) {
	cfg := &appconfig.Config{LocalTimezone: "Nowhere/City"}
	_, err := newHandler(cfg, &bootstrap.Runtime{}, logging.New("error"))
	assert.ErrorContains(t, err, "LOCAL_TIMEZONE")
}
