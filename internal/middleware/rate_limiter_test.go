package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowWindow(t *testing.T) {
	rl := NewRateLimiter(3, nil, nil)
	base := time.Now()
	now := base
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "attempt %d fits the limit", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "fourth attempt in the window is rejected")

	assert.True(t, rl.Allow("10.0.0.2"), "keys are limited independently")

	now = base.Add(2 * time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"), "a fresh window resets the budget")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, func(r *http.Request) string { return r.Header.Get("X-Real-IP") }, nil)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.9").Code)
	assert.Equal(t, http.StatusOK, send("203.0.113.9").Code)

	rec := send("203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests, try again later"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, send("198.51.100.7").Code, "other clients are unaffected")
}
