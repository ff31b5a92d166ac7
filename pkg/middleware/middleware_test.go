package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/constants"
	"github.com/iota-uz/bothub/pkg/httpapi"
	"github.com/iota-uz/bothub/pkg/middleware"
)

const userHeader = "X-User-ID"

// whoami echoes the bound user uid, or "anonymous".
func whoami(w http.ResponseWriter, r *http.Request) {
	uid, err := composables.UseUserID(r.Context())
	if err != nil {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(uid.String()))
}

func newRouter(mws ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mws...)
	r.HandleFunc("/whoami", whoami)
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	if header != "" {
		req.Header.Set(userHeader, header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWithUser(t *testing.T) {
	t.Parallel()
	r := newRouter(middleware.WithUser(userHeader))

	t.Run("bound", func(t *testing.T) {
		uid := uuid.New()
		rec := do(r, uid.String())
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uid.String(), rec.Body.String())
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := do(r, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("malformed", func(t *testing.T) {
		rec := do(r, "not-a-uuid")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var env httpapi.ErrorEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, "INVALID_USER", env.Code)
	})
}

func TestProvide(t *testing.T) {
	t.Parallel()
	r := mux.NewRouter()
	r.Use(middleware.Provide(constants.AppKey, "app"))
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		v, _ := r.Context().Value(constants.AppKey).(string)
		_, _ = w.Write([]byte(v))
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "app", rec.Body.String())
}

func TestRateLimit_PerUser(t *testing.T) {
	t.Parallel()
	r := newRouter(
		middleware.WithUser(userHeader),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: 2,
			Period:            time.Minute,
			Store:             middleware.NewMemoryStore(),
		}),
	)
	alice, bob := uuid.NewString(), uuid.NewString()

	for i := 0; i < 2; i++ {
		rec := do(r, alice)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(r, alice)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "RATE_LIMITED", env.Code)

	assert.Equal(t, http.StatusOK, do(r, bob).Code)
}

func TestRateLimit_AnonymousByAddress(t *testing.T) {
	t.Parallel()
	r := newRouter(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerPeriod: 1,
		Period:            time.Minute,
	}))
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "").Code)
}

func TestCors_AllowedOrigins(t *testing.T) {
	t.Parallel()
	r := newRouter(middleware.Cors("http://localhost:3000"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithLogger(t *testing.T) {
	t.Parallel()
	logger, hook := test.NewNullLogger()
	opts := middleware.DefaultLoggerOptions()

	r := mux.NewRouter()
	r.Use(middleware.WithLogger(logger, opts))
	r.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		composables.UseLogger(r.Context()).Info("inside")
		_ = httpapi.WriteJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	})
	r.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	var inside *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "inside" {
			inside = e
		}
	}
	require.NotNil(t, inside)
	assert.Equal(t, "req-1", inside.Data["request-id"])
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "request completed", last.Message)
	assert.Equal(t, http.StatusCreated, last.Data["status-code"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", env.Code)
}
