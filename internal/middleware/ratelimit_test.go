package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: false})(okHandler())

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitMiddleware_BurstThenReject(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 3})(okHandler())

	statuses := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/download", nil))
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, []int{
		http.StatusOK, http.StatusOK, http.StatusOK,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, statuses)
}

func TestRateLimitMiddleware_RetryAfterHeader(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestTokenBucket_DegenerateConfigAdmitsAll(t *testing.T) {
	bucket := newTokenBucket(0, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, bucket.take())
	}
}
