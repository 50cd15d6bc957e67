package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTraceEnv() *gin.Engine {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})
	return r
}

func traceGet(r *gin.Engine, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTraceIDGeneratedPerRequest(t *testing.T) {
	r := newTraceEnv()

	w1 := traceGet(r)
	require.Equal(t, http.StatusOK, w1.Code)
	id := w1.Body.String()
	assert.Len(t, id, 36, "uuid string")
	assert.Equal(t, id, w1.Header().Get(TraceIDHeader), "echoed in the response header")

	w2 := traceGet(r)
	assert.NotEqual(t, id, w2.Body.String())
}

func TestTraceIDPropagatedFromCaller(t *testing.T) {
	r := newTraceEnv()
	w := traceGet(r, TraceIDHeader, "caller-supplied-trace")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caller-supplied-trace", w.Body.String())
	assert.Equal(t, "caller-supplied-trace", w.Header().Get(TraceIDHeader))
}

func TestGetTraceIDOutsideMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}
