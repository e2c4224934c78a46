package repository

import (
	"gorm.io/gorm"
)

// GormLeaveRepository is a GORM implementation of LeaveRepository
type GormLeaveRepository struct {
	db *gorm.DB
}

// NewLeaveRepository creates a new LeaveRepository
func NewLeaveRepository(db *gorm.DB) LeaveRepository {
	return &GormLeaveRepository{db: db}
}

func (r *GormLeaveRepository) Create(leave *Leave) error {
	return r.db.Create(leave).Error
}

func (r *GormLeaveRepository) FindByID(id string) (*Leave, error) {
	var leave Leave
	if err := r.db.Where("id = ?", id).First(&leave).Error; err != nil {
		return nil, err
	}
	return &leave, nil
}

// List lists leave requests by start date; a nil requesterID lists everyone's.
func (r *GormLeaveRepository) List(requesterID *string) ([]Leave, error) {
	query := r.db.Order("start_date ASC").Order("id ASC")
	if requesterID != nil {
		query = query.Where("requester_id = ?", *requesterID)
	}

	var leaves []Leave
	if err := query.Find(&leaves).Error; err != nil {
		return nil, err
	}
	return leaves, nil
}

func (r *GormLeaveRepository) Update(leave *Leave) error {
	return r.db.Save(leave).Error
}
