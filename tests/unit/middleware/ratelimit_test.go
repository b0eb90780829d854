package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"contaluz/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(rps float64, burst int) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RateLimit(rps, burst))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r *gin.Engine, ip string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := newRouter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(r, "10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1"))
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	r := newRouter(0.001, 1)

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.2"))
}
