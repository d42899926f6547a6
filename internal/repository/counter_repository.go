package repository

import (
	"fmt"

	"citizen-system/internal/model"

	"gorm.io/gorm"
)

// CounterRepository 命名计数器
type CounterRepository struct{}

// NewCounterRepository 创建CounterRepository实例
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{}
}

// Next 计数器加一并返回新值。
// tx 必须是引用该值的实体所在的事务：自增持有行锁直到提交，
// 同一事务内回读即为本次分配的值；事务回滚则该值作废（允许空洞，不会重复）。
// MySQL 不支持 UPDATE ... RETURNING，这里用“自增 + 事务内回读”代替。
func (r *CounterRepository) Next(tx *gorm.DB, name string) (int64, error) {
	res := tx.Model(&model.Counter{}).
		Where("name = ?", name).
		Update("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("计数器自增失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("计数器 %s: %w", name, ErrNotFound)
	}

	var c model.Counter
	if err := tx.Select("value").Where("name = ?", name).Take(&c).Error; err != nil {
		return 0, fmt.Errorf("读取计数器失败: %w", translate(err))
	}
	return c.Value, nil
}
