package model

// CitizenIDCounter 公民编号计数器名称
const CitizenIDCounter = "citizenId"

// Counter 命名单行计数器
type Counter struct {
	Name  string `gorm:"type:varchar(64);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

func (Counter) TableName() string { return "counter" }
