package gormdb

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate runs AutoMigrate for models and then executes the extra DDL
// statements (indexes gorm tags cannot express) in order.
func Migrate(g *GormDB, models []any, extra ...string) error {
	return g.conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		for _, stmt := range extra {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("migrate %q: %w", stmt, err)
			}
		}
		return nil
	})
}
