package repository

import (
	"context"
	"errors"
	"fmt"

	"citizen-system/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModerationRepository 审核处置仓储
type ModerationRepository struct {
	db *gorm.DB
}

// NewModerationRepository 创建ModerationRepository实例
func NewModerationRepository(db *gorm.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

// Violation 一次违规处置的输入
type Violation struct {
	CommentID    string
	RawScore     string // 分类器原始输出，原样写入审计
	BanThreshold int
}

// ViolationOutcome 处置结果
type ViolationOutcome struct {
	AuthorID string
	Warnings int
	Banned   bool
	Action   model.ModAction
}

// ApplyViolation 在一个事务内完成：警告计数加一、达到阈值封禁、写审计记录、删除评论。
// 评论已被其他投递删除时返回 ErrAlreadyHandled 并整体回滚，保证同一评论只处置一次。
func (r *ModerationRepository) ApplyViolation(ctx context.Context, v Violation) (ViolationOutcome, error) {
	var out ViolationOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Comment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", v.CommentID).Take(&c).Error
		if err != nil {
			if errors.Is(translate(err), ErrNotFound) {
				return fmt.Errorf("评论 %s: %w", v.CommentID, ErrAlreadyHandled)
			}
			return err
		}

		author, err := lockProfile(tx, c.AuthorID)
		if err != nil {
			return fmt.Errorf("评论作者 %s: %w", c.AuthorID, err)
		}

		warnings := author.Warnings + 1
		banned := author.Banned || warnings >= v.BanThreshold
		action := model.ModActionWarn
		if warnings >= v.BanThreshold {
			action = model.ModActionBan
		}

		if err := tx.Model(&model.Profile{}).Where("id = ?", author.ID).Updates(map[string]any{
			"warnings": warnings,
			"banned":   banned,
		}).Error; err != nil {
			return err
		}

		if err := tx.Create(&model.ModLog{
			UserID:    author.ID,
			CommentID: c.ID,
			Score:     v.RawScore,
			Action:    action,
		}).Error; err != nil {
			return err
		}

		// 回复保留，父引用置空
		if err := tx.Model(&model.Comment{}).Where("parent_id = ?", c.ID).Update("parent_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Comment{}, "id = ?", c.ID).Error; err != nil {
			return err
		}

		out = ViolationOutcome{AuthorID: author.ID, Warnings: warnings, Banned: banned, Action: action}
		return nil
	})
	if err != nil {
		return ViolationOutcome{}, err
	}
	return out, nil
}

// HasLogForComment 评论是否已有审计记录（用于识别重复投递）
func (r *ModerationRepository) HasLogForComment(ctx context.Context, commentID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ModLog{}).Where("comment_id = ?", commentID).Count(&n).Error
	return n > 0, err
}

// ListLogsByUser 获取用户的审核记录
func (r *ModerationRepository) ListLogsByUser(ctx context.Context, userID string) ([]model.ModLog, error) {
	var logs []model.ModLog
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&logs).Error
	return logs, err
}
