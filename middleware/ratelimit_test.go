package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func rateLimitedGet(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func newRateLimitEnv(limit rate.Limit, burst int) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(limit, burst))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitBurstThenReject(t *testing.T) {
	// Near-zero refill so the burst is the whole budget.
	r := newRateLimitEnv(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, rateLimitedGet(r, "10.0.1.1"), "request %d within burst", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, rateLimitedGet(r, "10.0.1.1"))
}

func TestRateLimitBucketsPerIP(t *testing.T) {
	r := newRateLimitEnv(0.001, 1)

	assert.Equal(t, http.StatusOK, rateLimitedGet(r, "10.1.1.1"))
	assert.Equal(t, http.StatusOK, rateLimitedGet(r, "10.1.1.2"), "second ip has its own bucket")
	assert.Equal(t, http.StatusTooManyRequests, rateLimitedGet(r, "10.1.1.1"))
}
