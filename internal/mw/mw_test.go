package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResponseCache(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	hits := 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/rooms", func(c *gin.Context) {
		hits++
		c.Header("X-Hits", "counted")
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.GET("/missing", func(c *gin.Context) {
		hits++
		c.Status(http.StatusNotFound)
	})
	r.PUT("/rooms", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	first := do(http.MethodGet, "/rooms")
	second := do(http.MethodGet, "/rooms")
	assert.Equal(t, 1, hits)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "counted", second.Header().Get("X-Hits"))
	assert.Equal(t, 1, rc.Len())

	do(http.MethodGet, "/missing")
	do(http.MethodGet, "/missing")
	assert.Equal(t, 3, hits, "errors are not cached")

	do(http.MethodPost, "/fail")
	assert.Equal(t, 1, rc.Len(), "failed writes keep the cache")

	do(http.MethodPut, "/rooms")
	assert.Equal(t, 0, rc.Len())
	do(http.MethodGet, "/rooms")
	assert.Equal(t, 4, hits)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(0.0001, 2, "X-Forwarded-For"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(client string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", client)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1, 192.168.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestClientKeyFallsBackToRemoteAddr(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:4242"

	assert.Equal(t, "203.0.113.7", ClientKey(c, "X-Real-IP"))
	c.Request.Header.Set("X-Real-IP", "198.51.100.1")
	assert.Equal(t, "198.51.100.1", ClientKey(c, "X-Real-IP"))
}
