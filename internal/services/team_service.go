package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
	"github.com/yukikurage/task-management-client/internal/repository"
	"github.com/yukikurage/task-management-client/internal/utils"
	"gorm.io/gorm"
)

var (
	ErrTeamNotFound      = errors.New("team not found")
	ErrTeamNameRequired  = errors.New("team name is required")
	ErrTeamNameTaken     = errors.New("team name is already in use")
	ErrAlreadyTeamMember = errors.New("user is already a member of this team")
	ErrNotTeamMember     = errors.New("user is not a member of this team")
)

// TeamService handles team business logic
type TeamService struct {
	teamRepo  repository.TeamRepository
	userRepo  repository.UserRepository
	publisher Publisher
}

// NewTeamService creates a new TeamService
func NewTeamService(teamRepo repository.TeamRepository, userRepo repository.UserRepository, publisher Publisher) *TeamService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &TeamService{teamRepo: teamRepo, userRepo: userRepo, publisher: publisher}
}

// ListTeams returns all teams with their members
func (s *TeamService) ListTeams() ([]models.Team, error) {
	teams, err := s.teamRepo.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	out := make([]models.Team, len(teams))
	for i, t := range teams {
		out[i] = t.ToModel()
	}
	return out, nil
}

// GetTeam retrieves a team by ID
func (s *TeamService) GetTeam(teamID string) (*repository.Team, error) {
	team, err := s.teamRepo.FindByID(teamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return team, nil
}

// CreateTeam creates a team and announces it to everyone
func (s *TeamService) CreateTeam(name string) (models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Team{}, ErrTeamNameRequired
	}

	teams, err := s.teamRepo.List()
	if err != nil {
		return models.Team{}, fmt.Errorf("failed to check team name: %w", err)
	}
	for _, t := range teams {
		if strings.EqualFold(t.Name, name) {
			return models.Team{}, ErrTeamNameTaken
		}
	}

	team := &repository.Team{ID: utils.NewID("team"), Name: name}
	if err := s.teamRepo.Create(team); err != nil {
		return models.Team{}, fmt.Errorf("failed to create team: %w", err)
	}

	publish(s.publisher, Audience{Everyone: true}, realtime.TeamCreatedEvent{TeamID: team.ID, TeamName: team.Name})
	return team.ToModel(), nil
}

// AddMember adds an existing user to a team
func (s *TeamService) AddMember(teamID, userID string) (models.Team, error) {
	team, err := s.GetTeam(teamID)
	if err != nil {
		return models.Team{}, err
	}
	if team.ToModel().HasMember(userID) {
		return models.Team{}, ErrAlreadyTeamMember
	}
	if _, err := s.userRepo.FindByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Team{}, ErrUserNotFound
		}
		return models.Team{}, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.teamRepo.AddMember(&repository.TeamMember{TeamID: teamID, UserID: userID, JoinedAt: time.Now()}); err != nil {
		return models.Team{}, fmt.Errorf("failed to add member: %w", err)
	}

	publish(s.publisher, Audience{UserIDs: []string{userID}, Admins: true}, realtime.UserAssignedToTeamEvent{
		TeamID: team.ID, TeamName: team.Name, UserID: userID,
	})
	return s.reload(teamID)
}

// RemoveMember removes a user from a team
func (s *TeamService) RemoveMember(teamID, userID string) (models.Team, error) {
	team, err := s.GetTeam(teamID)
	if err != nil {
		return models.Team{}, err
	}

	removed, err := s.teamRepo.RemoveMember(teamID, userID)
	if err != nil {
		return models.Team{}, fmt.Errorf("failed to remove member: %w", err)
	}
	if !removed {
		return models.Team{}, ErrNotTeamMember
	}

	publish(s.publisher, Audience{UserIDs: []string{userID}, Admins: true}, realtime.UserRemovedFromTeamEvent{
		TeamID: team.ID, TeamName: team.Name, UserID: userID,
	})
	return s.reload(teamID)
}

func (s *TeamService) reload(teamID string) (models.Team, error) {
	team, err := s.GetTeam(teamID)
	if err != nil {
		return models.Team{}, err
	}
	return team.ToModel(), nil
}
