package model

import "time"

// Comment 话题评论
// ParentID 为空表示顶层评论，非空时必须指向同一话题下的评论
// 审核违规时物理删除（不做软删除）
type Comment struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	TopicID   string    `gorm:"type:varchar(64);not null;index;comment:话题ID"`
	AuthorID  string    `gorm:"type:varchar(36);not null;index;comment:作者ID"`
	ParentID  *string   `gorm:"type:varchar(36);index;comment:父评论ID"`
	Body      string    `gorm:"type:text;not null;comment:内容"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
}

func (Comment) TableName() string { return "comment" }
