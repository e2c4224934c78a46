package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
)

// Credentials are exchanged for a session on login.
type Credentials struct {
	Email    string
	Password string
}

// Registration creates a new account.
type Registration struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// Login exchanges credentials for a user and token. It needs no session.
func (c *Client) Login(ctx context.Context, creds Credentials) (dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, c.public(http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Email:    creds.Email,
		Password: creds.Password,
	}), &resp)
	if err != nil {
		return dto.AuthResponse{}, err
	}
	return resp, validateAuth(resp)
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, reg Registration) (dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, c.public(http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Name:     reg.Name,
		Email:    reg.Email,
		Password: reg.Password,
		Role:     reg.Role,
	}), &resp)
	if err != nil {
		return dto.AuthResponse{}, err
	}
	return resp, validateAuth(resp)
}

// WhoAmI validates an explicit token against the backend. Used before a
// session exists in memory.
func (c *Client) WhoAmI(ctx context.Context, token string) (models.User, error) {
	var resp dto.MeResponse
	req := request{method: http.MethodGet, path: "/api/auth/me", token: token}
	if err := c.do(ctx, req, &resp); err != nil {
		return models.User{}, err
	}
	if err := resp.User.Validate(); err != nil {
		return models.User{}, apierrors.Validation(fmt.Errorf("invalid user from server: %w", err))
	}
	return resp.User, nil
}

// Me returns the user behind the current session token.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	return c.WhoAmI(ctx, c.tokens.Token())
}

func validateAuth(resp dto.AuthResponse) error {
	if resp.Token == "" {
		return apierrors.Validation(fmt.Errorf("server returned no token"))
	}
	if err := resp.User.Validate(); err != nil {
		return apierrors.Validation(fmt.Errorf("invalid user from server: %w", err))
	}
	return nil
}
