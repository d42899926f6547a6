package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"citizen-system/internal/model"
	"citizen-system/internal/repository"
	"citizen-system/pkg/llm"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/metrics"
	"citizen-system/pkg/retry"

	"go.uber.org/zap"
)

// ModerationResult 审核结果
type ModerationResult struct {
	Moderated      bool
	Blocked        bool
	Score          int
	Action         model.ModAction
	AlreadyHandled bool // 其他投递已处置过该评论
}

// ModerationService 评论审核：评分、删除违规评论、累计警告直至封禁
type ModerationService struct {
	comments      *repository.CommentRepository
	moderation    *repository.ModerationRepository
	scorer        TextScorer
	metrics       *metrics.Metrics
	policy        retry.Policy
	passScore     int
	banThreshold  int
	vendorTimeout time.Duration
}

// ModerationDeps 审核服务依赖
type ModerationDeps struct {
	Comments      *repository.CommentRepository
	Moderation    *repository.ModerationRepository
	Scorer        TextScorer
	Metrics       *metrics.Metrics
	Policy        retry.Policy
	PassScore     int
	BanThreshold  int
	VendorTimeout time.Duration
}

// NewModerationService 创建审核服务
func NewModerationService(d ModerationDeps) *ModerationService {
	if d.PassScore <= 0 {
		d.PassScore = 4
	}
	if d.BanThreshold <= 0 {
		d.BanThreshold = 2
	}
	if d.Policy.Permanent == nil {
		d.Policy.Permanent = storePermanent
	}
	if d.Policy.OnAttempt == nil {
		d.Policy.OnAttempt = d.Metrics.RetryHook
	}
	return &ModerationService{
		comments:      d.Comments,
		moderation:    d.Moderation,
		scorer:        d.Scorer,
		metrics:       d.Metrics,
		policy:        d.Policy,
		passScore:     d.PassScore,
		banThreshold:  d.BanThreshold,
		vendorTimeout: d.VendorTimeout,
	}
}

// Moderate 审核一条评论。
// 评论不存在但已有审计记录时视为重复投递，直接成功；
// 评分服务失败返回错误，由队列的重新投递兜底。
func (s *ModerationService) Moderate(ctx context.Context, commentID string) (ModerationResult, error) {
	c, err := retry.Do(ctx, s.policy, "moderation.load", func(ctx context.Context) (*model.Comment, error) {
		return s.comments.GetByID(ctx, commentID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return s.missing(ctx, commentID)
	}
	if err != nil {
		return ModerationResult{}, fmt.Errorf("加载评论 %s: %w", commentID, err)
	}

	score, err := withTimeout(ctx, s.vendorTimeout, func(ctx context.Context) (llm.Score, error) {
		return s.scorer.ScoreText(ctx, c.Body)
	})
	if err != nil {
		return ModerationResult{}, fmt.Errorf("评论评分失败: %w", err)
	}
	s.metrics.ObserveScore(score.Value)

	if score.Value <= s.passScore {
		s.metrics.IncModeration("passed")
		return ModerationResult{Moderated: true, Score: score.Value}, nil
	}

	out, err := retry.Do(ctx, s.policy, "moderation.apply", func(ctx context.Context) (repository.ViolationOutcome, error) {
		return s.moderation.ApplyViolation(ctx, repository.Violation{
			CommentID:    c.ID,
			RawScore:     score.Raw,
			BanThreshold: s.banThreshold,
		})
	})
	if errors.Is(err, repository.ErrAlreadyHandled) {
		s.metrics.IncModeration("already_handled")
		return ModerationResult{Moderated: true, Blocked: true, Score: score.Value, AlreadyHandled: true}, nil
	}
	if err != nil {
		return ModerationResult{}, fmt.Errorf("处置违规评论 %s: %w", c.ID, err)
	}

	s.metrics.IncModeration(string(out.Action))
	fields := []zap.Field{
		zap.String("comment_id", c.ID),
		zap.String("author_id", out.AuthorID),
		zap.Int("score", score.Value),
		zap.Int("warnings", out.Warnings),
	}
	if out.Action == model.ModActionBan {
		logger.Warn("用户因累计违规被封禁", fields...)
	} else {
		logger.Info("违规评论已删除并警告作者", fields...)
	}
	return ModerationResult{Moderated: true, Blocked: true, Score: score.Value, Action: out.Action}, nil
}

func (s *ModerationService) missing(ctx context.Context, commentID string) (ModerationResult, error) {
	handled, err := retry.Do(ctx, s.policy, "moderation.log_lookup", func(ctx context.Context) (bool, error) {
		return s.moderation.HasLogForComment(ctx, commentID)
	})
	if err != nil {
		return ModerationResult{}, err
	}
	if !handled {
		return ModerationResult{}, fmt.Errorf("评论 %s: %w", commentID, ErrNotFound)
	}
	logger.Info("评论已被处置，忽略重复投递", zap.String("comment_id", commentID))
	s.metrics.IncModeration("already_handled")
	return ModerationResult{Moderated: true, Blocked: true, AlreadyHandled: true}, nil
}
