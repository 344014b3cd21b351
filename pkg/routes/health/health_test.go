package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) error { return nil }

func TestChecker_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		redis      Pinger
		wantStatus int
		wantChecks []string
	}{
		{
			name:       "database up, no redis",
			db:         PingFunc(healthy),
			wantStatus: http.StatusOK,
			wantChecks: []string{"database"},
		},
		{
			name:       "redis down",
			db:         PingFunc(healthy),
			redis:      PingFunc(func(context.Context) error { return errors.New("connection refused") }),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: []string{"database", "redis"},
		},
		{
			name:       "no database",
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: []string{"database"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			checker := NewChecker(tt.db, tt.redis, "test")
			checker.RegisterRoutes(e)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "test", body.Version)
			for _, name := range tt.wantChecks {
				assert.Contains(t, body.Checks, name)
			}
		})
	}
}

func TestChecker_Ready(t *testing.T) {
	e := echo.New()
	checker := NewChecker(PingFunc(healthy), nil, "test")
	checker.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReady(true)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
