package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/yourorg/backtest-service/internal/metrics"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func accessClaims(sub interface{}) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  sub,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
		"type": "access",
	}
}

func newRouter(logger *zap.Logger, handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		sub, _ := c.Get(SubjectKey)
		c.JSON(http.StatusOK, gin.H{"subject": sub})
	})
	return r
}

func serve(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestValidateToken(t *testing.T) {
	sub, err := ValidateToken(signToken(t, accessClaims(42), testSecret), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "42", sub)

	sub, err = ValidateToken(signToken(t, accessClaims("svc-a"), testSecret), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "svc-a", sub)

	refresh := accessClaims(1)
	refresh["type"] = "refresh"
	_, err = ValidateToken(signToken(t, refresh, testSecret), testSecret)
	assert.Error(t, err)

	_, err = ValidateToken(signToken(t, accessClaims(1), "other"), testSecret)
	assert.Error(t, err)

	expired := accessClaims(1)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	_, err = ValidateToken(signToken(t, expired, testSecret), testSecret)
	assert.Error(t, err)

	noSub := accessClaims(1)
	delete(noSub, "sub")
	_, err = ValidateToken(signToken(t, noSub, testSecret), testSecret)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	r := newRouter(logger, AuthMiddleware(testSecret, logger))

	assert.Equal(t, http.StatusUnauthorized, serve(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"Authorization": "Token abc"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"Authorization": "Bearer garbage"}).Code)

	rec := serve(r, map[string]string{"Authorization": "Bearer " + signToken(t, accessClaims(7), testSecret)})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subject":"7"}`, rec.Body.String())
}

func TestServiceAuthMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	r := newRouter(logger, ServiceAuthMiddleware("key", logger))

	assert.Equal(t, http.StatusUnauthorized, serve(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"X-Service-Key": "wrong"}).Code)

	rec := serve(r, map[string]string{"X-Service-Key": "key"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subject":"service"}`, rec.Body.String())
}

func TestEitherAuth(t *testing.T) {
	logger := zaptest.NewLogger(t)
	r := newRouter(logger, EitherAuth(testSecret, "key", logger))

	assert.Equal(t, http.StatusOK, serve(r, map[string]string{"X-Service-Key": "key"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"X-Service-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, map[string]string{"Authorization": "Bearer " + signToken(t, accessClaims(3), testSecret)}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, nil).Code)
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	r := newRouter(zap.NewNop(), RateLimit(limiter))

	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, nil).Code)

	// a different client has its own bucket
	assert.True(t, limiter.Allow("10.0.0.9"))
}

func TestRateLimiter_Prune(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.Allow("a")
	limiter.Allow("b")

	assert.Equal(t, 0, limiter.Prune(time.Hour))
	assert.Equal(t, 2, limiter.Prune(-time.Second))
}

func TestMetricsAndLogger(t *testing.T) {
	collector := metrics.NewCollector()
	r := newRouter(zaptest.NewLogger(t), Logger(zaptest.NewLogger(t)), Metrics(collector))

	serve(r, nil)
	serve(r, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/ping", "200")))
}
