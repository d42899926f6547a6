//go:build integration

package containers

import (
	"context"
	"testing"

	dbPkg "citizen-system/pkg/db"

	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLContainer 测试用 MySQL 容器
type MySQLContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *gorm.DB
}

// NewMySQLContainer 启动 MySQL 8 容器并建立 GORM 连接
func NewMySQLContainer(t *testing.T) *MySQLContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("citizen"),
		tcmysql.WithUsername("citizen"),
		tcmysql.WithPassword("citizen"),
	)
	if err != nil {
		t.Fatalf("启动mysql容器失败: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=True", "loc=UTC")
	if err != nil {
		t.Fatalf("获取mysql连接串失败: %v", err)
	}

	db, err := gorm.Open(mysql.Open(dsn), dbPkg.GormConfig(false))
	if err != nil {
		t.Fatalf("连接mysql失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取数据库实例失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(32)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return &MySQLContainer{Container: container, DSN: dsn, DB: db}
}
