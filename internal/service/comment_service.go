package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"citizen-system/internal/model"
	"citizen-system/internal/repository"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/queue"
	"citizen-system/pkg/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommentService 评论提交与查询
type CommentService struct {
	comments      *repository.CommentRepository
	profiles      *repository.ProfileRepository
	publisher     JobPublisher
	policy        retry.Policy
	maxBodyLength int
}

// NewCommentService 创建CommentService实例
func NewCommentService(comments *repository.CommentRepository, profiles *repository.ProfileRepository, publisher JobPublisher, policy retry.Policy, maxBodyLength int) *CommentService {
	if policy.Permanent == nil {
		policy.Permanent = storePermanent
	}
	return &CommentService{
		comments:      comments,
		profiles:      profiles,
		publisher:     publisher,
		policy:        policy,
		maxBodyLength: maxBodyLength,
	}
}

// CreateComment 发表评论并投递审核任务。
// 作者必须是未封禁的 ACTIVE 用户；回复的父评论必须属于同一话题。
func (s *CommentService) CreateComment(ctx context.Context, authorID, topicID, parentID, body string) (*model.Comment, error) {
	body = strings.TrimSpace(body)
	topicID = strings.TrimSpace(topicID)
	if body == "" || topicID == "" {
		return nil, fmt.Errorf("评论内容和话题不能为空: %w", ErrInvalidInput)
	}
	if s.maxBodyLength > 0 && utf8.RuneCountInString(body) > s.maxBodyLength {
		return nil, fmt.Errorf("评论超过 %d 字: %w", s.maxBodyLength, ErrInvalidInput)
	}

	author, err := retry.Do(ctx, s.policy, "comment.author", func(ctx context.Context) (*model.Profile, error) {
		return s.profiles.GetByID(ctx, authorID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if author.Lifecycle() != model.StatusActive {
		return nil, fmt.Errorf("用户状态为 %s: %w", author.Lifecycle(), ErrForbidden)
	}

	c := &model.Comment{
		ID:       uuid.NewString(),
		TopicID:  topicID,
		AuthorID: authorID,
		Body:     body,
	}
	if parentID != "" {
		parent, err := retry.Do(ctx, s.policy, "comment.parent", func(ctx context.Context) (*model.Comment, error) {
			return s.comments.GetByID(ctx, parentID)
		})
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidParent
		}
		if err != nil {
			return nil, err
		}
		if parent.TopicID != topicID {
			return nil, fmt.Errorf("父评论属于话题 %s: %w", parent.TopicID, ErrInvalidParent)
		}
		c.ParentID = &parent.ID
	}

	if err := retry.Exec(ctx, s.policy, "comment.create", func(ctx context.Context) error {
		return s.comments.Create(ctx, c)
	}); err != nil {
		return nil, err
	}

	// 评论已落库，投递失败只记录日志，可通过 jobctl 补投
	if err := s.publisher.Publish(ctx, queue.NewJob(queue.KindModeration, c.ID)); err != nil {
		logger.Error("投递审核任务失败", zap.String("comment_id", c.ID), zap.Error(err))
	}
	return c, nil
}

// ListComments 获取话题下的评论
func (s *CommentService) ListComments(ctx context.Context, topicID string, limit, offset int) ([]*model.Comment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.comments.ListByTopic(ctx, topicID, limit, offset)
}
