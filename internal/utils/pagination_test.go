package utils

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func paramsFor(query string) PaginationParams {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/users?"+query, nil)
	return GetPaginationParams(c)
}

func TestGetPaginationParams(t *testing.T) {
	assert.Equal(t, PaginationParams{Page: 1}, paramsFor(""))
	assert.Equal(t, PaginationParams{Page: 3, Limit: 10, Offset: 20}, paramsFor("page=3&limit=10"))
	assert.Equal(t, PaginationParams{Page: 1, Limit: DefaultPageSize}, paramsFor("page=-2&limit=100000"))
}

func TestNewID(t *testing.T) {
	a, b := NewID("task"), NewID("task")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "task_"))
	assert.NotContains(t, NewID(""), "-")
}
