package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
)

func newTestServer(t *testing.T, register func(r *gin.Engine)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_MissingTokenShortCircuits(t *testing.T) {
	var hits int32
	srv := newTestServer(t, func(r *gin.Engine) {
		r.Any("/*path", func(c *gin.Context) {
			atomic.AddInt32(&hits, 1)
			c.Status(http.StatusOK)
		})
	})

	client := NewClient(srv.URL, StaticToken(""))

	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrUnauthenticated)

	err = client.DeleteTask(context.Background(), "t1")
	assert.ErrorIs(t, err, apierrors.ErrUnauthenticated)

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "no request should reach the server")
}

func TestClient_AttachesBearerToken(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.GET("/api/tasks", func(c *gin.Context) {
			assert.Equal(t, "Bearer tok-123", c.GetHeader("Authorization"))
			c.JSON(http.StatusOK, dto.TaskListResponse{Tasks: []models.Task{
				{ID: "a", Title: "A", Status: models.TaskStatusTodo},
			}})
		})
	})

	client := NewClient(srv.URL, TokenFunc(func() string { return "tok-123" }))
	tasks, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskPriorityMedium, tasks[0].Priority)
}

func TestClient_LoginSendsNoAuthorization(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.POST("/api/auth/login", func(c *gin.Context) {
			assert.Empty(t, c.GetHeader("Authorization"))
			var req dto.LoginRequest
			require.NoError(t, c.ShouldBindJSON(&req))
			assert.Equal(t, "a@b.com", req.Email)
			c.JSON(http.StatusOK, dto.AuthResponse{
				User:  models.User{ID: "u1", Name: "A", Role: models.RoleAdmin, Active: true},
				Token: "tok",
			})
		})
	})

	client := NewClient(srv.URL, StaticToken("stale"))
	resp, err := client.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
}

func TestClient_ServerMessageBecomesServerError(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.GET("/api/tasks", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Token expired"})
		})
		r.PATCH("/api/tasks/:id/status", func(c *gin.Context) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only assignees can move this task"})
		})
	})

	client := NewClient(srv.URL, StaticToken("tok"))

	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrServer)
	assert.Equal(t, "Token expired", err.Error())
	assert.Equal(t, http.StatusUnauthorized, apierrors.StatusOf(err))

	_, err = client.UpdateTaskStatus(context.Background(), "t1", models.TaskStatusDone)
	assert.ErrorIs(t, err, apierrors.ErrServer)
	assert.Equal(t, "Only assignees can move this task", err.Error())
}

func TestClient_FailureWithoutMessageIsNetworkError(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.GET("/api/tasks", func(c *gin.Context) {
			c.String(http.StatusBadGateway, "<html>bad gateway</html>")
		})
	})

	client := NewClient(srv.URL, StaticToken("tok"))
	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrNetwork)
	assert.Equal(t, http.StatusBadGateway, apierrors.StatusOf(err))
}

func TestClient_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, StaticToken("tok"))
	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrNetwork)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.NotNil(t, apiErr.Unwrap())
}

func TestClient_NoRetries(t *testing.T) {
	var hits int32
	srv := newTestServer(t, func(r *gin.Engine) {
		r.POST("/api/tasks", func(c *gin.Context) {
			atomic.AddInt32(&hits, 1)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "boom"})
		})
	})

	client := NewClient(srv.URL, StaticToken("tok"))
	_, err := client.CreateTask(context.Background(), dto.CreateTaskRequest{Title: "x", AssignedTo: []string{"u1"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_RejectsUnknownStatusFromServer(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.GET("/api/tasks", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"tasks": []gin.H{
				{"id": "a", "title": "ok", "status": "todo"},
				{"id": "b", "title": "bad", "status": "archived"},
			}})
		})
	})

	client := NewClient(srv.URL, StaticToken("tok"))
	tasks, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrValidation)
	assert.ErrorIs(t, err, models.ErrUnknownTaskStatus)
	assert.Nil(t, tasks)
}

func TestClient_DeleteAcceptsNoContentAndEcho(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.DELETE("/api/tasks/:id", func(c *gin.Context) {
			if c.Param("id") == "echo" {
				c.JSON(http.StatusOK, dto.DeleteTaskResponse{ID: "echo"})
				return
			}
			c.Status(http.StatusNoContent)
		})
	})

	client := NewClient(srv.URL, StaticToken("tok"))
	require.NoError(t, client.DeleteTask(context.Background(), "gone"))
	require.NoError(t, client.DeleteTask(context.Background(), "echo"))
}

func TestClient_ListUsersFallsBack(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.GET("/api/users", func(c *gin.Context) {
			c.JSON(http.StatusOK, dto.UserListResponse{Users: []models.User{{ID: "u1", Role: models.RoleUser}}})
		})
	})

	client := NewClient(srv.URL, StaticToken("tok"))
	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
}

func TestClient_WhoAmIUsesExplicitToken(t *testing.T) {
	srv := newTestServer(t, func(r *gin.Engine) {
		r.GET("/api/auth/me", func(c *gin.Context) {
			if c.GetHeader("Authorization") != "Bearer persisted" {
				c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
				return
			}
			c.JSON(http.StatusOK, dto.MeResponse{User: models.User{ID: "u1", Role: models.RoleUser}})
		})
	})

	client := NewClient(srv.URL, StaticToken(""))
	user, err := client.WhoAmI(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = client.Me(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrUnauthenticated)
}
