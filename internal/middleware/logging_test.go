package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tin-report/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error"})

	var seenID string
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware_PropagatesIncomingRequestID(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error"})

	var seenID string
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seenID)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestStatusRecorder_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	sr.WriteHeader(http.StatusNotFound)
	sr.WriteHeader(http.StatusInternalServerError) // ignored

	assert.Equal(t, http.StatusNotFound, sr.status)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusRecorder_WriteDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	_, err := sr.Write([]byte("body"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, sr.status)
	assert.True(t, sr.written)
}
