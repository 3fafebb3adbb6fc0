package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcart-backend/pkg/logger"
)

func TestRequestIDEchoesOrMints(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "abc-123", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	require.NoError(t, err)
	assert.Equal(t, rec.Header().Get(requestIDHeader), seen)
}

func TestCleanRequestID(t *testing.T) {
	assert.Equal(t, "ok", cleanRequestID("  ok "))
	assert.Empty(t, cleanRequestID(strings.Repeat("a", maxRequestIDLen+1)))
	assert.Empty(t, cleanRequestID("tab\there"))
}

func TestLoggingRecordsRouteAndStatus(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &logs})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/orders/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("done"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/42", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	out := logs.String()
	assert.Contains(t, out, "request.complete")
	assert.Contains(t, out, `"route":"/api/v1/orders/{orderId}"`)
	assert.Contains(t, out, `"status":202`)
	assert.Contains(t, out, `"bytes":4`)
}
