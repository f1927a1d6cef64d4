package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func doRequest(handler gin.HandlerFunc, headers map[string]string) (*httptest.ResponseRecorder, int64) {
	gin.SetMode(gin.TestMode)
	var captured int64
	r := gin.New()
	r.GET("/x", handler, func(c *gin.Context) {
		captured = UserID(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, captured
}

func TestRequireUser(t *testing.T) {
	w, id := doRequest(RequireUser(), map[string]string{"X-User-ID": "42"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), id)

	for _, header := range []map[string]string{
		nil,
		{"X-User-ID": ""},
		{"X-User-ID": "abc"},
		{"X-User-ID": "0"},
		{"X-User-ID": "-3"},
	} {
		w, _ := doRequest(RequireUser(), header)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	w, _ := doRequest(RequireAdmin("secret"), map[string]string{"X-Admin-Token": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(RequireAdmin("secret"), map[string]string{"X-Admin-Token": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doRequest(RequireAdmin("secret"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
