package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/testutil"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorBody {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

// --- RequestID ---

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := newEngine(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) { seen = GetRequestID(c); c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}

func TestRequestID_ReusesIncoming(t *testing.T) {
	r := newEngine(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	assert.Equal(t, "req-123", serve(r, req).Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("a", 65))
	assert.NotEqual(t, strings.Repeat("a", 65), serve(r, req).Header().Get(HeaderRequestID))
}

// --- RespondError ---

func TestRespondError_MapsCodes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"not found", errors.New(errors.ErrCodeExplorationNotFound, "exploration not found"), http.StatusNotFound, string(errors.ErrCodeExplorationNotFound), "exploration not found"},
		{"with detail", errors.New(errors.CodeInvalidParam, "invalid direction").WithDetail("sideways"), http.StatusBadRequest, string(errors.CodeInvalidParam), "invalid direction: sideways"},
		{"conflict", errors.New(errors.ErrCodeStaleGenerationConflict, "stale"), http.StatusConflict, string(errors.ErrCodeStaleGenerationConflict), "stale"},
		{"plain error is masked", fmtError("db password leaked"), http.StatusInternalServerError, string(errors.ErrCodeInternal), errors.DefaultMessageForCode(errors.ErrCodeInternal)},
		{"internal is masked", errors.New(errors.ErrCodeDatabaseError, "pq: relation missing"), http.StatusInternalServerError, string(errors.ErrCodeDatabaseError), errors.DefaultMessageForCode(errors.ErrCodeDatabaseError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(RequestID())
			r.GET("/x", func(c *gin.Context) { RespondError(c, tt.err) })

			w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.message, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

type fmtError string

func (e fmtError) Error() string { return string(e) }

// --- Recovery ---

func TestRecovery_ReturnsEnvelope(t *testing.T) {
	logger := testutil.NewMockLogger()
	r := newEngine(RequestID(), Recovery(logger))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(errors.ErrCodeInternal), decodeError(t, w).Code)
	assert.True(t, logger.HasMessage("error", "panic in HTTP handler"))
}

// --- RequestLogging ---

func TestRequestLogging_Levels(t *testing.T) {
	logger := testutil.NewMockLogger()
	r := newEngine(RequestID(), RequestLogging(logger, DefaultLoggingConfig()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/ok", "/bad", "/fail", "/healthz"} {
		serve(r, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.True(t, logger.HasMessage("info", "HTTP request completed"))
	assert.True(t, logger.HasMessage("warn", "client error"))
	assert.True(t, logger.HasMessage("error", "server error"))
	assert.Len(t, logger.GetMessages(), 3)
}

func TestRequestLogging_Slow(t *testing.T) {
	logger := testutil.NewMockLogger()
	r := newEngine(RequestLogging(logger, LoggingConfig{SlowThreshold: time.Millisecond}))
	r.GET("/slow", func(c *gin.Context) { time.Sleep(5 * time.Millisecond); c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.True(t, logger.HasMessage("warn", "slow"))
}

// --- Metrics ---

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	r := newEngine(Metrics(prometheus.NewExplorerMetrics(c)))
	r.GET("/api/v1/explorations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/explorations/exp-1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	w := serve(c.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `path="/api/v1/explorations/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "exp-1")
}

// --- APIKeyAuth ---

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		header string
		value  string
		status int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"bearer", "s3cret", "Authorization", "Bearer s3cret", http.StatusOK},
		{"api key header", "s3cret", HeaderAPIKey, "s3cret", http.StatusOK},
		{"missing", "s3cret", "", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Authorization", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(APIKeyAuth(tt.key, testutil.NewMockLogger()))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, string(errors.ErrCodeUnauthorized), decodeError(t, w).Code)
			}
		})
	}
}

// --- RateLimit ---

func TestTokenBucketLimiter_BurstThenRefill(t *testing.T) {
	l := NewTokenBucketLimiter(10, 2, 0)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, info := l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 1, info.Remaining)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys have independent buckets")

	now = now.Add(100 * time.Millisecond)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	l := NewTokenBucketLimiter(10, 1, 0)
	l.cleanupInterval = time.Minute
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	assert.Equal(t, 1, l.BucketCount())
	now = now.Add(2 * time.Minute)
	l.cleanup()
	assert.Zero(t, l.BucketCount())
	l.Stop()
	l.Stop()
}

func TestRateLimit_Middleware(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1, 0)
	r := newEngine(RequestID(), RateLimit(l))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, string(errors.ErrCodeRateLimited), decodeError(t, w).Code)
}

// --- BodyLimit ---

func TestBodyLimit(t *testing.T) {
	r := newEngine(BodyLimit(8))
	r.POST("/x", func(c *gin.Context) {
		var v map[string]string
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"0123456789"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Tracing ---

func TestTracing_RecordsRouteAndStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	shutdown, err := tracing.Setup(tracing.Config{Enabled: true, ServiceName: "test", SampleRatio: 1}, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	defer shutdown(context.Background())

	r := newEngine(Tracing())
	r.GET("/api/v1/explorations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/explorations/exp-1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /api/v1/explorations/:id", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
