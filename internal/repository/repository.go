package repository

import (
	"github.com/yukikurage/task-management-client/internal/utils"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *User) error

	// FindByID finds a user by ID
	FindByID(id string) (*User, error)

	// FindByEmail finds a user by email
	FindByEmail(email string) (*User, error)

	// List lists users, oldest first
	List(params utils.PaginationParams) ([]User, int64, error)

	// CountByIDs counts how many of the given user IDs exist and are active
	CountByIDs(ids []string) (int64, error)

	// Update updates a user
	Update(user *User) error
}

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a task together with its assignments
	Create(task *Task) error

	// FindByID finds a task by ID with its assignees
	FindByID(id string) (*Task, error)

	// List retrieves tasks matching filter, oldest first
	List(filter TaskFilter) ([]Task, error)

	// Update saves task fields and, when assignees is non-nil, replaces its assignments
	Update(task *Task, assignees []string) error

	// Delete deletes a task and its assignments
	Delete(id string) error
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	// VisibleTo limits the result to tasks the user created or is assigned to.
	VisibleTo *string
}

// LeaveRepository defines the interface for leave request data access
type LeaveRepository interface {
	Create(leave *Leave) error
	FindByID(id string) (*Leave, error)
	List(requesterID *string) ([]Leave, error)
	Update(leave *Leave) error
}

// TeamRepository defines the interface for team data access
type TeamRepository interface {
	// Create creates a new team
	Create(team *Team) error

	// FindByID finds a team by ID with its members
	FindByID(id string) (*Team, error)

	// List lists all teams with their members
	List() ([]Team, error)

	// AddMember adds a member to a team
	AddMember(member *TeamMember) error

	// RemoveMember removes a member from a team; it reports whether one was removed
	RemoveMember(teamID, userID string) (bool, error)
}
