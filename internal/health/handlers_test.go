package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dealer/internal/health"
	"github.com/noah-isme/backend-dealer/internal/resilience"
)

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := health.Handler{
		Dependencies: []health.Dependency{
			{Name: "redis", Timeout: 200 * time.Millisecond, Probe: func(ctx context.Context) error { return client.Ping(ctx).Err() }},
		},
		Breakers: []health.BreakerReporter{resilience.NewBreaker(resilience.BreakerConfig{Target: "inventory"})},
	}
	code, status := ready(t, h)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", status["redis"])
	require.Equal(t, "closed", status["breaker:inventory"])

	mr.Close()
	code, status = ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.NotEqual(t, "ok", status["redis"])
}

func TestReadyFailure(t *testing.T) {
	h := health.Handler{Dependencies: []health.Dependency{
		{Name: "db", Probe: func(context.Context) error { return errors.New("db down") }},
		{Name: "redis", Probe: func(context.Context) error { return nil }},
	}}
	code, status := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "db down", status["db"])
	require.Equal(t, []string{"db", "redis"}, h.Names())
}

func TestProbeTimeout(t *testing.T) {
	h := health.Handler{Dependencies: []health.Dependency{
		{Name: "db", Timeout: 10 * time.Millisecond, Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}}
	code, _ := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{}
	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })

	code, status := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting down", status["server"])

	health.SetReady(true)
	code, _ = ready(t, h)
	require.Equal(t, http.StatusOK, code)
}
