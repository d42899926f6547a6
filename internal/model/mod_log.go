package model

import "time"

// ModAction 审核处置
type ModAction string

const (
	ModActionWarn ModAction = "warn"
	ModActionBan  ModAction = "ban"
)

// ModLog 审核审计记录，只追加，不修改不删除
type ModLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(36);not null;index;comment:被处置用户"`
	CommentID string    `gorm:"type:varchar(36);not null;index;comment:评论ID"`
	Score     string    `gorm:"type:text;not null;comment:分类器原始输出"`
	Action    ModAction `gorm:"type:varchar(16);not null;comment:处置动作"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
}

func (ModLog) TableName() string { return "mod_log" }
