package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h(c)

	var body Response
	json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestSuccess(t *testing.T) {
	w, body := serve(func(c *gin.Context) { Created(c, gin.H{"id": "s-1"}) })
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   string
	}{
		{http.StatusNotFound, "STREAM_NOT_FOUND", "STREAM_NOT_FOUND"},
		{http.StatusNotFound, "", "NOT_FOUND"},
		{http.StatusTooManyRequests, "", "RATE_LIMITED"},
		{http.StatusTeapot, "", "ERROR"},
	}
	for _, tt := range tests {
		w, body := serve(func(c *gin.Context) { Error(c, tt.status, tt.code, "boom") })
		assert.Equal(t, tt.status, w.Code)
		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, tt.want, body.Error.Code)
		assert.Equal(t, "boom", body.Error.Message)
	}
}

func TestUnauthorizedAborts(t *testing.T) {
	var aborted bool
	w, body := serve(func(c *gin.Context) {
		Unauthorized(c, "invalid token")
		aborted = c.IsAborted()
	})
	assert.True(t, aborted)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
}
