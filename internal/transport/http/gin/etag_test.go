package httpgin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNotModified(t *testing.T) {
	const tag = `"abc"`

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"zzz", W/"abc"`, true},
		{`"zzz"`, false},
		{"*", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, notModified(tt.header, tag), "If-None-Match: %q", tt.header)
	}
}

func TestWriteCached(t *testing.T) {
	body := map[string]int{"seats": 3}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	writeCached(c, http.StatusOK, body, sessionCache)

	tag := w.Header().Get("ETag")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Regexp(t, `^W/"[0-9a-f]{32}"$`, tag)
	assert.Equal(t, "public, max-age=30", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("If-None-Match", tag)
	writeCached(c, http.StatusOK, body, sessionCache)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestValidRequestID(t *testing.T) {
	assert.True(t, validRequestID("0b8f6c1e-req"))
	assert.False(t, validRequestID(""))
	assert.False(t, validRequestID("has space"))
	assert.False(t, validRequestID(string(make([]byte, 65))))
}
