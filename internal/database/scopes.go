package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/task-management-client/internal/utils"
)

// Paginate applies pagination to a GORM query. A zero limit means no limit.
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if params.Limit <= 0 {
			return db
		}
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// Oldest orders by creation time, then id, so listings are stable.
func Oldest(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
