package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/seed"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:                 "fern-test",
		Version:                 "test",
		StoreDriver:             config.StoreDriverMemory,
		MatchAutoThreshold:      95,
		MatchCandidateThreshold: 75,
		StartupMaxAttempts:      1,
		AllowOrigins:            []string{"*"},
		AllowMethods:            []string{http.MethodGet, http.MethodPost},
	}
}

func TestApp_StartServeStop(t *testing.T) {
	ctx := context.Background()
	a := New(testConfig(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, a.Start(ctx, Options{Consume: true}))

	demo, err := seed.Demo()
	require.NoError(t, err)
	_, err = a.Seeder.Apply(ctx, demo, "seed")
	require.NoError(t, err)

	router := a.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(`{"raw_name":"ACME Supply Co."}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"match_id":"node:vendor:12345"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fern_")

	require.NoError(t, a.Stop(ctx))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "debug"
	logger, sync, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	sync()

	cfg.LogLevel = "loud"
	_, _, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestApp_StartRejectsInvalidThresholds(t *testing.T) {
	tests := []struct {
		name      string
		auto      float64
		candidate float64
	}{
		{name: "auto equal to candidate", auto: 80, candidate: 80},
		{name: "auto below candidate", auto: 70, candidate: 90},
		{name: "auto above 100", auto: 120, candidate: 75},
		{name: "negative candidate", auto: 95, candidate: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MatchAutoThreshold = tt.auto
			cfg.MatchCandidateThreshold = tt.candidate

			a := New(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
			err := a.Start(context.Background(), Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid matching configuration")
			assert.Nil(t, a.Orchestrator)
			assert.False(t, a.Health.IsReady())
		})
	}
}
