package repository

import (
	"fmt"

	"citizen-system/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate 自动迁移表结构并初始化计数器
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Profile{}, &model.Comment{}, &model.ModLog{}, &model.Counter{}); err != nil {
		return fmt.Errorf("自动迁移失败: %w", err)
	}
	return SeedCounter(db, model.CitizenIDCounter)
}

// SeedCounter 计数器行不存在时插入初始值0，已存在则保持不变
func SeedCounter(db *gorm.DB, name string) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Counter{Name: name, Value: 0}).Error
}
