package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/yukikurage/task-management-client/internal/models"
)

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwdw==", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			c.Request.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(c), tt.header)
	}
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(userID string, role models.Role) int {
		r := gin.New()
		r.GET("/admin", func(c *gin.Context) {
			if userID != "" {
				c.Set(ContextKeyUserID, userID)
				c.Set(ContextKeyUserRole, role)
			}
			c.Next()
		}, RequireAdmin(), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("a1", models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, serve("u1", models.RoleUser))
	assert.Equal(t, http.StatusUnauthorized, serve("", ""))
}

func TestGetActor(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetActor(c)
	assert.False(t, ok)

	c.Set(ContextKeyUserID, "u1")
	c.Set(ContextKeyUserRole, models.RoleAdmin)
	actor, ok := GetActor(c)
	assert.True(t, ok)
	assert.Equal(t, "u1", actor.ID)
	assert.True(t, actor.IsAdmin())
}
