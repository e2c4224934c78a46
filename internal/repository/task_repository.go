package repository

import (
	"github.com/yukikurage/task-management-client/internal/database"
	"gorm.io/gorm"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

func orderedAssignments(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create creates a task together with its assignments
func (r *GormTaskRepository) Create(task *Task) error {
	for i := range task.Assignments {
		task.Assignments[i].TaskID = task.ID
		task.Assignments[i].Position = i
	}
	return r.db.Create(task).Error
}

// FindByID finds a task by ID with its assignees
func (r *GormTaskRepository) FindByID(id string) (*Task, error) {
	var task Task
	if err := r.db.Preload("Assignments", orderedAssignments).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// List retrieves tasks matching filter, oldest first
func (r *GormTaskRepository) List(filter TaskFilter) ([]Task, error) {
	query := r.db.Model(&Task{})

	if filter.VisibleTo != nil {
		assigned := r.db.Model(&TaskAssignment{}).
			Select("1").
			Where("task_assignments.task_id = tasks.id").
			Where("task_assignments.user_id = ?", *filter.VisibleTo)
		query = query.Where("tasks.creator_id = ? OR EXISTS (?)", *filter.VisibleTo, assigned)
	}

	var tasks []Task
	if err := query.Scopes(database.Oldest).Preload("Assignments", orderedAssignments).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update saves task fields and, when assignees is non-nil, replaces its assignments
func (r *GormTaskRepository) Update(task *Task, assignees []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Assignments").Save(task).Error; err != nil {
			return err
		}
		if assignees == nil {
			return nil
		}

		if err := tx.Where("task_id = ?", task.ID).Delete(&TaskAssignment{}).Error; err != nil {
			return err
		}
		rows := make([]TaskAssignment, len(assignees))
		for i, userID := range assignees {
			rows[i] = TaskAssignment{TaskID: task.ID, UserID: userID, Position: i}
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		task.Assignments = rows
		return nil
	})
}

// Delete deletes a task and its assignments
func (r *GormTaskRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&TaskAssignment{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&Task{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
