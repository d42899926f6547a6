package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"citizen-system/pkg/avatar"
	"citizen-system/pkg/face"
	"citizen-system/pkg/llm"
	"citizen-system/pkg/queue"
	"citizen-system/pkg/redis"
)

// FaceIndexer 人脸服务
type FaceIndexer interface {
	IndexFace(ctx context.Context, imageURL, subjectID string) (string, error)
	SearchSimilar(ctx context.Context, imageURL string) (face.Match, error)
}

// AvatarGenerator 头像生成服务
type AvatarGenerator interface {
	GenerateAvatar(ctx context.Context, req avatar.Request) ([]string, error)
}

// NicknameGenerator 昵称候选生成
type NicknameGenerator interface {
	GenerateNicknameCandidates(ctx context.Context, req llm.NicknameRequest) ([]string, error)
}

// TextScorer 文本评分
type TextScorer interface {
	ScoreText(ctx context.Context, text string) (llm.Score, error)
}

// ProgressReporter 进度展示
type ProgressReporter interface {
	Write(ctx context.Context, p redis.Progress) error
}

// JobPublisher 任务投递
type JobPublisher interface {
	Publish(ctx context.Context, job queue.Job) error
}
