package repository

import (
	"github.com/yukikurage/task-management-client/internal/database"
	"gorm.io/gorm"
)

// GormTeamRepository is a GORM implementation of TeamRepository
type GormTeamRepository struct {
	db *gorm.DB
}

// NewTeamRepository creates a new TeamRepository
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &GormTeamRepository{db: db}
}

func membersByJoinDate(db *gorm.DB) *gorm.DB {
	return db.Order("joined_at ASC")
}

// Create creates a new team
func (r *GormTeamRepository) Create(team *Team) error {
	return r.db.Create(team).Error
}

// FindByID finds a team by ID with its members
func (r *GormTeamRepository) FindByID(id string) (*Team, error) {
	var team Team
	if err := r.db.Preload("Members", membersByJoinDate).Where("id = ?", id).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// List lists all teams with their members
func (r *GormTeamRepository) List() ([]Team, error) {
	var teams []Team
	if err := r.db.Scopes(database.Oldest).Preload("Members", membersByJoinDate).Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

// AddMember adds a member to a team
func (r *GormTeamRepository) AddMember(member *TeamMember) error {
	return r.db.Create(member).Error
}

// RemoveMember removes a member from a team
func (r *GormTeamRepository) RemoveMember(teamID, userID string) (bool, error) {
	result := r.db.Where("team_id = ? AND user_id = ?", teamID, userID).Delete(&TeamMember{})
	return result.RowsAffected > 0, result.Error
}
