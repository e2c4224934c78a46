package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/task-management-client/internal/dto"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/repository"
	"github.com/yukikurage/task-management-client/internal/services"
)

func setupTeamHandler(t *testing.T) (*TeamHandler, *recordingPublisher) {
	t.Helper()
	db := openTestDB(t)
	createTestUser(t, db, "admin", models.RoleAdmin)
	createTestUser(t, db, "alice", models.RoleUser)

	publisher := &recordingPublisher{}
	service := services.NewTeamService(repository.NewTeamRepository(db), repository.NewUserRepository(db), publisher)
	return NewTeamHandler(service), publisher
}

func createTeam(t *testing.T, h *TeamHandler, name string) (int, models.Team) {
	t.Helper()
	body, _ := json.Marshal(dto.CreateTeamRequest{Name: name})
	c, w := createAuthContext("POST", "/api/teams", body, "admin", models.RoleAdmin)
	h.CreateTeam(c)

	var response dto.TeamResponse
	_ = json.Unmarshal(w.Body.Bytes(), &response)
	return w.Code, response.Team
}

func memberRequest(t *testing.T, h *TeamHandler, method, teamID, userID string) (int, models.Team) {
	t.Helper()
	var body []byte
	if method == "POST" {
		body, _ = json.Marshal(dto.AddTeamMemberRequest{UserID: userID})
	}
	c, w := createAuthContext(method, "/api/teams/"+teamID+"/members", body, "admin", models.RoleAdmin)
	c.Params = gin.Params{{Key: "id", Value: teamID}, {Key: "user_id", Value: userID}}
	if method == "POST" {
		h.AddMember(c)
	} else {
		h.RemoveMember(c)
	}

	var response dto.TeamResponse
	_ = json.Unmarshal(w.Body.Bytes(), &response)
	return w.Code, response.Team
}

func TestTeamHandler_CreateTeam(t *testing.T) {
	h, publisher := setupTeamHandler(t)

	code, team := createTeam(t, h, " Platform ")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Platform", team.Name)
	assert.Empty(t, team.Members)

	created := publisher.events("teamCreated")
	require.Len(t, created, 1)
	assert.True(t, created[0].audience.Everyone)

	code, _ = createTeam(t, h, "platform")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = createTeam(t, h, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTeamHandler_Membership(t *testing.T) {
	h, publisher := setupTeamHandler(t)
	_, team := createTeam(t, h, "Platform")

	code, updated := memberRequest(t, h, "POST", team.ID, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"alice"}, updated.Members)
	assigned := publisher.events("userAssignedToTeam")
	require.Len(t, assigned, 1)
	assert.Equal(t, []string{"alice"}, assigned[0].audience.UserIDs)

	code, _ = memberRequest(t, h, "POST", team.ID, "alice")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = memberRequest(t, h, "POST", team.ID, "ghost")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = memberRequest(t, h, "POST", "missing", "alice")
	assert.Equal(t, http.StatusNotFound, code)

	code, updated = memberRequest(t, h, "DELETE", team.ID, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, updated.Members)
	assert.Len(t, publisher.events("userRemovedFromTeam"), 1)

	code, _ = memberRequest(t, h, "DELETE", team.ID, "alice")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTeamHandler_ListTeams(t *testing.T) {
	h, _ := setupTeamHandler(t)
	createTeam(t, h, "One")
	createTeam(t, h, "Two")

	c, w := createAuthContext("GET", "/api/teams", nil, "alice", models.RoleUser)
	h.ListTeams(c)
	require.Equal(t, http.StatusOK, w.Code)

	var response dto.TeamListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Teams, 2)
	assert.Equal(t, "One", response.Teams[0].Name)
}
