package dto

import "github.com/yukikurage/task-management-client/internal/models"

// TeamResponse wraps a single team: `{ "team": ... }`
type TeamResponse struct {
	Team models.Team `json:"team"`
}

// TeamListResponse wraps a list of teams: `{ "teams": [...] }`
type TeamListResponse struct {
	Teams []models.Team `json:"teams"`
}

// CreateTeamRequest is the body of POST /api/teams.
type CreateTeamRequest struct {
	Name string `json:"name"`
}

// AddTeamMemberRequest is the body of POST /api/teams/:id/members.
type AddTeamMemberRequest struct {
	UserID string `json:"userId"`
}
