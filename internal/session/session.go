package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yukikurage/task-management-client/internal/models"
)

// Session is the authenticated identity held by the client. The zero value
// is "no session"; User and Token are always set or cleared together.
type Session struct {
	User  *models.User
	Token string
}

// Active reports whether s holds a credential.
func (s Session) Active() bool {
	return s.User != nil && s.Token != ""
}

// Permissions are derived from the user's role.
type Permissions struct {
	CreateTasks    bool
	DeleteAnyTask  bool
	ManageUsers    bool
	ManageTeams    bool
	RequestLeave   bool
	ApproveLeaves  bool
	ViewAdminBoard bool
}

// PermissionsFor derives permissions for a user; nil means anonymous.
func PermissionsFor(user *models.User) Permissions {
	if user == nil || !user.Active {
		return Permissions{}
	}
	p := Permissions{
		CreateTasks:  true,
		RequestLeave: true,
	}
	if user.IsAdmin() {
		p.DeleteAnyTask = true
		p.ManageUsers = true
		p.ManageTeams = true
		p.ApproveLeaves = true
		p.ViewAdminBoard = true
	}
	return p
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens are never considered expired locally.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}
