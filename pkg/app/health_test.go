package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/app"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return rec.Code, body
}

func TestHealthRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := app.NewOpsEngine(zerolog.Nop(), map[string]app.HealthCheck{
		"db": func(context.Context) error { return nil },
		"mq": func(context.Context) error { return errors.New("events disabled") },
	})

	code, body := get(t, engine, "/health/db")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = get(t, engine, "/health/mq")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "events disabled", body["error"])

	code, body = get(t, engine, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Len(t, body["components"], 2)
}
