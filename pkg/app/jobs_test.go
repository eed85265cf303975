package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/app"
	"github.com/yeisme/docvault/pkg/scheduler"
)

func TestJobRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sched, err := scheduler.NewScheduler(zerolog.Nop())
	require.NoError(t, err)

	sched.Start()
	t.Cleanup(func() { _ = sched.Stop() })

	var runs atomic.Int32

	require.NoError(t, sched.AddCron(context.Background(), "purge", "0 4 * * *", func(context.Context) error {
		runs.Add(1)

		return nil
	}))

	engine := gin.New()
	app.RegisterJobRoutes(engine.Group("/jobs"), sched)

	code, body := get(t, engine, "/jobs")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["jobs"], 1)

	code, body = get(t, engine, "/jobs/purge")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "purge", body["name"])

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/purge/run", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/jobs/purge", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	code, _ = get(t, engine, "/jobs/purge")
	assert.Equal(t, http.StatusNotFound, code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/purge/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
