package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func serve(router *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.New(core)))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(router, "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TimeoutMiddleware(10 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	router.GET("/fast", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusGatewayTimeout, serve(router, "/slow", nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/fast", nil).Code)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/stocks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, "/stocks/1", map[string]string{"X-Request-ID": "req-1"})

	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	entries := logs.FilterMessage("Request handled").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "/stocks/:id", entries[0].ContextMap()["path"])
		assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	}

	w = serve(router, "/stocks/2", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealthCheckMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetVersion("test")
	router := gin.New()
	router.GET("/health", HealthCheckMiddleware(pingerFunc(func(context.Context) error { return errors.New("connection refused") })))

	w := serve(router, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(2, time.Minute)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set("userID", id)
		}
	}, RateLimitMiddleware(limiter))
	router.GET("/stocks", func(c *gin.Context) { c.Status(http.StatusOK) })

	user1 := map[string]string{"X-Test-User": "1"}
	assert.Equal(t, http.StatusOK, serve(router, "/stocks", user1).Code)
	assert.Equal(t, http.StatusOK, serve(router, "/stocks", user1).Code)

	w := serve(router, "/stocks", user1)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve(router, "/stocks", map[string]string{"X-Test-User": "2"}).Code)
	assert.Equal(t, http.StatusOK, serve(router, "/stocks", nil).Code)

	clock = clock.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, serve(router, "/stocks", user1).Code)
}

func TestRateLimiter_Run(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Millisecond)
	assert.True(t, limiter.IsAllowed("1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		_, tracked := limiter.requests["1"]
		return !tracked
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
