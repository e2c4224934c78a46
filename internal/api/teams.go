package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/yukikurage/task-management-client/internal/dto"
	"github.com/yukikurage/task-management-client/internal/models"
)

// ListTeams fetches every team with its members.
func (c *Client) ListTeams(ctx context.Context) ([]models.Team, error) {
	var resp dto.TeamListResponse
	if err := c.do(ctx, c.authed(http.MethodGet, "/api/teams", nil), &resp); err != nil {
		return nil, err
	}
	return resp.Teams, nil
}

// CreateTeam creates a team. Admin only.
func (c *Client) CreateTeam(ctx context.Context, name string) (models.Team, error) {
	var resp dto.TeamResponse
	if err := c.do(ctx, c.authed(http.MethodPost, "/api/teams", dto.CreateTeamRequest{Name: name}), &resp); err != nil {
		return models.Team{}, err
	}
	return resp.Team, nil
}

// AddTeamMember adds userID to a team. Admin only.
func (c *Client) AddTeamMember(ctx context.Context, teamID, userID string) (models.Team, error) {
	var resp dto.TeamResponse
	req := c.authed(http.MethodPost, teamPath(teamID)+"/members", dto.AddTeamMemberRequest{UserID: userID})
	if err := c.do(ctx, req, &resp); err != nil {
		return models.Team{}, err
	}
	return resp.Team, nil
}

// RemoveTeamMember removes userID from a team. Admin only.
func (c *Client) RemoveTeamMember(ctx context.Context, teamID, userID string) (models.Team, error) {
	var resp dto.TeamResponse
	path := teamPath(teamID) + "/members/" + url.PathEscape(userID)
	if err := c.do(ctx, c.authed(http.MethodDelete, path, nil), &resp); err != nil {
		return models.Team{}, err
	}
	return resp.Team, nil
}

func teamPath(id string) string {
	return "/api/teams/" + url.PathEscape(id)
}
