package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// IndexSpec is a secondary index created after AutoMigrate.
type IndexSpec struct {
	Model   interface{}
	Name    string
	Columns []string
}

// Migrate creates or updates the tables for models.
func Migrate(db *gorm.DB, models ...interface{}) error {
	log.Println("database: running migrations")
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// AddIndexes creates each index that does not exist yet.
func AddIndexes(db *gorm.DB, indexes ...IndexSpec) error {
	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.Model, idx.Name) {
			continue
		}

		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(idx.Model); err != nil {
			return fmt.Errorf("failed to parse model for index %s: %w", idx.Name, err)
		}
		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.Name, stmt.Schema.Table, strings.Join(idx.Columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.Name, err)
		}
		log.Printf("database: created index %s on %s", idx.Name, stmt.Schema.Table)
	}
	return nil
}
