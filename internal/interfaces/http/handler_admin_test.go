package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huduma/answer-service/internal/config"
	"github.com/huduma/answer-service/internal/entities"
	"github.com/huduma/answer-service/internal/infrastructure"
	"github.com/huduma/answer-service/internal/logger"
)

const testSecret = "test-secret"

type fakeAuth struct{}

func (fakeAuth) Login(username, password string) (string, error) {
	if username == "admin" && password == "s3cret" {
		return "signed-token", nil
	}
	return "", errors.New("invalid credentials")
}

type fakeUsage struct {
	days  int
	daily []entities.DailyUsage
	err   error
}

func (f *fakeUsage) DailyUsage(_ context.Context, days int) ([]entities.DailyUsage, error) {
	f.days = days
	return f.daily, f.err
}

func (f *fakeUsage) SourceTotals(_ context.Context, _ int) (map[entities.Source]int64, error) {
	return map[entities.Source]int64{entities.SourceRAGLLM: 3}, f.err
}

func signToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func newAdminRouter(t *testing.T, usage *fakeUsage) http.Handler {
	t.Helper()
	return newAdminRouterWithLimiter(t, usage, infrastructure.NewMessageRateLimiter(600, 100))
}

func newAdminRouterWithLimiter(t *testing.T, usage *fakeUsage, limiter *infrastructure.MessageRateLimiter) http.Handler {
	t.Helper()
	log := logger.NewNoOpLogger()
	mw := NewMiddleware(testSecret, limiter, "", log)

	stats := map[string]RateLimiter{"web": limiter}
	admin := NewAdminHandler(fakeAuth{}, nil, config.DefaultPersona(), stats, log)
	if usage != nil {
		admin = NewAdminHandler(fakeAuth{}, usage, config.DefaultPersona(), stats, log)
	}
	return newTestRouter(t, Deps{Chat: newFakeChat(), Middleware: mw, Admin: admin, Logger: log})
}

func authorized(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminLogin(t *testing.T) {
	r := newAdminRouter(t, nil)

	w := doRequest(r, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"s3cret"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"token":"signed-token"}`, w.Body.String())

	w = doRequest(r, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/api/auth/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	r := newAdminRouter(t, &fakeUsage{})

	assert.Equal(t, http.StatusUnauthorized, authorized(r, "/api/admin/rules", "").Code)
	assert.Equal(t, http.StatusUnauthorized, authorized(r, "/api/admin/rules", "garbage").Code)
	assert.Equal(t, http.StatusForbidden, authorized(r, "/api/admin/rules", signToken(t, "viewer")).Code)
	assert.Equal(t, http.StatusOK, authorized(r, "/api/admin/rules", signToken(t, entities.RoleAdmin)).Code)
}

func TestAdminUsage(t *testing.T) {
	usage := &fakeUsage{daily: []entities.DailyUsage{
		{Date: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), Channel: "web", Source: entities.SourceRAGLLM, Count: 3, AvgLatencyMs: 1200},
	}}
	r := newAdminRouter(t, usage)

	w := authorized(r, "/api/admin/usage?days=30", signToken(t, entities.RoleAdmin))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, usage.days)
	body := w.Body.String()
	assert.Contains(t, body, `"days":30`)
	assert.Contains(t, body, `"date":"2026-10-18T00:00:00Z"`)
	assert.Contains(t, body, `"rag+llm":3`)
}

func TestAdminUsage_DefaultDaysAndErrors(t *testing.T) {
	usage := &fakeUsage{err: errors.New("db down")}
	r := newAdminRouter(t, usage)

	w := authorized(r, "/api/admin/usage?days=1000", signToken(t, entities.RoleAdmin))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, DefaultUsageDays, usage.days)
}

func TestAdminUsage_NotConfigured(t *testing.T) {
	r := newAdminRouter(t, nil)

	w := authorized(r, "/api/admin/usage", signToken(t, entities.RoleAdmin))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminRules(t *testing.T) {
	r := newAdminRouter(t, nil)

	w := authorized(r, "/api/admin/rules", signToken(t, entities.RoleAdmin))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"greetings"`))
	assert.True(t, strings.Contains(w.Body.String(), `"facts"`))
}

func TestAdminStats(t *testing.T) {
	r := newAdminRouter(t, nil)

	w := authorized(r, "/api/admin/stats", signToken(t, entities.RoleAdmin))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rate_limiters"`)
	assert.Contains(t, w.Body.String(), `"web"`)
}

func postAuthorized(r http.Handler, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminResetRateLimit(t *testing.T) {
	limiter := infrastructure.NewMessageRateLimiter(1, 1)
	r := newAdminRouterWithLimiter(t, nil, limiter)
	token := signToken(t, entities.RoleAdmin)

	require.True(t, limiter.Allow("whatsapp:254700000001"))
	require.False(t, limiter.Allow("whatsapp:254700000001"))

	w := postAuthorized(r, "/api/admin/rate-limits/reset", `{"limiter":"web","key":"whatsapp:254700000001"}`, token)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, limiter.Allow("whatsapp:254700000001"))
}

func TestAdminResetRateLimit_BadRequests(t *testing.T) {
	r := newAdminRouter(t, nil)
	token := signToken(t, entities.RoleAdmin)

	assert.Equal(t, http.StatusBadRequest, postAuthorized(r, "/api/admin/rate-limits/reset", `{"limiter":"web"}`, token).Code)
	assert.Equal(t, http.StatusNotFound, postAuthorized(r, "/api/admin/rate-limits/reset", `{"limiter":"nope","key":"k"}`, token).Code)
	assert.Equal(t, http.StatusForbidden, postAuthorized(r, "/api/admin/rate-limits/reset", `{"limiter":"web","key":"k"}`, signToken(t, "viewer")).Code)
}
