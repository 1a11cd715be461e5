package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/ping", entries[0].ContextMap()["path"])
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("loud", "json")
	require.Error(t, err)

	logger, err := New("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
