package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireUser(t *testing.T) {
	r := gin.New()
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		userID, ok := GetUserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, userID.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(UserIDHeader, "alice")
		w := serve(r, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid header", func(t *testing.T) {
		id := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(UserIDHeader, id.String())
		w := serve(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id.String(), w.Body.String())
	})
}

func TestRequestLogger_EchoesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := serve(r, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://app.example.com"))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	w = serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), UserIDHeader)
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("*"))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://anything.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestTimeoutMiddleware(t *testing.T) {
	tm := NewTimeoutMiddleware(&TimeoutConfig{
		DefaultTimeout: time.Second,
		RouteTimeouts:  map[string]time.Duration{"/slow": 10 * time.Millisecond},
	})

	r := gin.New()
	r.Use(tm.Middleware())
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
		c.Status(http.StatusOK)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_TIMEOUT")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// MockWindowCounter is a mock implementation of WindowCounter
type MockWindowCounter struct {
	mock.Mock
}

func (m *MockWindowCounter) SafeIncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Get(1).(time.Duration), args.Error(2)
}

func (m *MockWindowCounter) IsDegraded() bool {
	return m.Called().Bool(0)
}

func rateLimitedRouter(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiter_InMemory(t *testing.T) {
	r := rateLimitedRouter(NewRateLimiter(nil, 2, time.Minute))

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// A different user has its own window
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(UserIDHeader, uuid.New().String())
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_UsesRedisKeyPerUser(t *testing.T) {
	userID := uuid.New().String()
	counter := new(MockWindowCounter)
	counter.On("IsDegraded").Return(false)
	counter.On("SafeIncrWindow", mock.Anything, "ratelimit:user:"+userID, time.Minute).
		Return(int64(11), 30*time.Second, nil)

	r := rateLimitedRouter(NewRateLimiter(counter, 10, time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(UserIDHeader, userID)
	w := serve(r, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	counter.AssertExpectations(t)
}

func TestRateLimiter_FallsBackWhenRedisFails(t *testing.T) {
	counter := new(MockWindowCounter)
	counter.On("IsDegraded").Return(false)
	counter.On("SafeIncrWindow", mock.Anything, mock.Anything, time.Minute).
		Return(int64(0), time.Duration(0), errors.New("connection refused"))

	r := rateLimitedRouter(NewRateLimiter(counter, 1, time.Minute))
	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiter_SkipsRedisWhenDegraded(t *testing.T) {
	counter := new(MockWindowCounter)
	counter.On("IsDegraded").Return(true)

	r := rateLimitedRouter(NewRateLimiter(counter, 5, time.Minute))
	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	counter.AssertNotCalled(t, "SafeIncrWindow", mock.Anything, mock.Anything, mock.Anything)
}

func TestInMemoryRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	im := NewInMemoryRateLimiter()
	im.now = func() time.Time { return now }

	count, ttl := im.Incr("ip:1.2.3.4", time.Minute)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, ttl)
	count, _ = im.Incr("ip:1.2.3.4", time.Minute)
	assert.Equal(t, int64(2), count)

	now = now.Add(time.Minute)
	count, _ = im.Incr("ip:1.2.3.4", time.Minute)
	assert.Equal(t, int64(1), count)
}
