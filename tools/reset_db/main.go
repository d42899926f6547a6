package main

import (
	"database/sql"
	"fmt"
	"log"

	"citizen-system/config"
	"citizen-system/internal/model"
	dbPkg "citizen-system/pkg/db"

	_ "github.com/go-sql-driver/mysql"
)

// 子表在前
var tables = []string{"mod_log", "comment", "profile"}

func main() {
	// 加载配置（.env + config.yaml + 环境变量）
	cfg := config.LoadConfig()

	db, err := sql.Open("mysql", dbPkg.DSN(cfg.Database))
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("数据库连接测试失败: %v", err)
	}

	fmt.Println("数据库连接成功")
	fmt.Printf("数据库: %s\n", cfg.Database.Database)

	// 确认
	fmt.Printf("\n警告: 该操作会清空表 %v 并把公民编号计数器重置为0！\n", tables)
	fmt.Print("输入 'YES' 确认: ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "YES" {
		fmt.Println("操作已取消")
		return
	}

	_, _ = db.Exec("SET FOREIGN_KEY_CHECKS=0")

	for _, table := range tables {
		fmt.Printf("清空表 %s... ", table)
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM `%s`", table)); err != nil {
			fmt.Printf("失败: %v\n", err)
		} else {
			fmt.Println("成功")
		}
	}

	fmt.Print("重置 mod_log 自增ID... ")
	if _, err := db.Exec("ALTER TABLE `mod_log` AUTO_INCREMENT = 1"); err != nil {
		fmt.Printf("失败: %v\n", err)
	} else {
		fmt.Println("成功")
	}

	_, _ = db.Exec("SET FOREIGN_KEY_CHECKS=1")

	// 计数器行必须存在，激活提交时只做 UPDATE
	fmt.Print("重置公民编号计数器... ")
	if _, err := db.Exec(
		"INSERT INTO `counter` (`name`, `value`) VALUES (?, 0) ON DUPLICATE KEY UPDATE `value` = 0",
		model.CitizenIDCounter,
	); err != nil {
		log.Fatalf("失败: %v", err)
	}
	fmt.Println("成功")

	fmt.Println("\n数据库重置完成，表结构保留")
}
