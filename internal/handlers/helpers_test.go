package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/task-management-client/internal/database"
	"github.com/yukikurage/task-management-client/internal/dto"
	"github.com/yukikurage/task-management-client/internal/middleware"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/repository"
	"github.com/yukikurage/task-management-client/internal/services"
	"gorm.io/gorm"
)

type published struct {
	audience services.Audience
	env      dto.Envelope
}

// recordingPublisher captures every event a service emits.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(audience services.Audience, env dto.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{audience: audience, env: env})
}

func (p *recordingPublisher) events(name string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.sent {
		if e.env.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, database.MemoryDSN, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, repository.Models()...))

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, id string, role models.Role) *repository.User {
	t.Helper()
	user := &repository.User{
		ID:           id,
		Name:         "User " + id,
		Email:        id + "@example.com",
		PasswordHash: "hashedpassword",
		Role:         string(role),
		Active:       true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// createAuthContext builds a context as RequireAuth would leave it.
func createAuthContext(method, url string, body []byte, userID string, role models.Role) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if userID != "" {
		c.Set(middleware.ContextKeyUserID, userID)
		c.Set(middleware.ContextKeyUserRole, role)
	}
	return c, w
}
