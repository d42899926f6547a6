// Package testutil 测试辅助
package testutil

import (
	"fmt"
	"testing"

	dbPkg "citizen-system/pkg/db"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSQLiteDB 创建一个独立的内存数据库。
// 只保留一个连接：SQLite 不支持行锁，单连接让事务天然串行，
// 与 MySQL 下 SELECT ... FOR UPDATE 的串行语义一致。
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), dbPkg.GormConfig(false))
	if err != nil {
		t.Fatalf("打开SQLite失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取数据库实例失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
