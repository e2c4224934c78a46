package repository

import (
	"time"

	"github.com/yukikurage/task-management-client/internal/models"
)

// User is the stored account. PasswordHash never leaves the server.
type User struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:100;not null"`
	Email        string `gorm:"size:191;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"size:16;not null"`
	Active       bool   `gorm:"not null;default:true"`
	// TokenVersion is embedded in issued tokens; bumping it revokes them all.
	TokenVersion int    `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) ToModel() models.User {
	return models.User{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   models.Role(u.Role),
		Active: u.Active,
	}
}

type Task struct {
	ID          string     `gorm:"primaryKey;size:64"`
	Title       string     `gorm:"size:200;not null"`
	Description string     `gorm:"type:text"`
	Status      string     `gorm:"size:16;not null"`
	Priority    string     `gorm:"size:16;not null"`
	CreatorID   string     `gorm:"size:64;not null"`
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Assignments []TaskAssignment `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

// TaskAssignment links a task to one assignee; Position keeps assignee order.
type TaskAssignment struct {
	TaskID   string `gorm:"primaryKey;size:64"`
	UserID   string `gorm:"primaryKey;size:64"`
	Position int    `gorm:"not null"`
}

func (t Task) Assignees() []string {
	out := make([]string, len(t.Assignments))
	for i, a := range t.Assignments {
		out[i] = a.UserID
	}
	return out
}

func (t Task) ToModel() models.Task {
	return models.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      models.TaskStatus(t.Status),
		Priority:    models.TaskPriority(t.Priority),
		Assignees:   t.Assignees(),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type Leave struct {
	ID          string    `gorm:"primaryKey;size:64"`
	RequesterID string    `gorm:"size:64;not null"`
	StartDate   time.Time `gorm:"not null"`
	EndDate     time.Time `gorm:"not null"`
	Reason      string    `gorm:"type:text;not null"`
	Status      string    `gorm:"size:16;not null"`
	ApproverID  string    `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l Leave) ToModel() models.LeaveRequest {
	return models.LeaveRequest{
		ID:          l.ID,
		RequesterID: l.RequesterID,
		StartDate:   l.StartDate,
		EndDate:     l.EndDate,
		Reason:      l.Reason,
		Status:      models.LeaveStatus(l.Status),
		ApproverID:  l.ApproverID,
	}
}

type Team struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time

	Members []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
}

type TeamMember struct {
	TeamID   string    `gorm:"primaryKey;size:64"`
	UserID   string    `gorm:"primaryKey;size:64"`
	JoinedAt time.Time `gorm:"not null"`
}

func (t Team) ToModel() models.Team {
	members := make([]string, len(t.Members))
	for i, m := range t.Members {
		members[i] = m.UserID
	}
	return models.Team{ID: t.ID, Name: t.Name, Members: members, CreatedAt: t.CreatedAt}
}

// Models lists every record type, for migrations.
func Models() []interface{} {
	return []interface{}{&User{}, &Task{}, &TaskAssignment{}, &Leave{}, &Team{}, &TeamMember{}}
}
