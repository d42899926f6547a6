// Package llm 语言模型适配层：昵称生成与文本评分
package llm

import (
	"context"
	"errors"
	"fmt"
)

// NicknameGenerator 生成昵称候选
type NicknameGenerator interface {
	GenerateNicknameCandidates(ctx context.Context, req NicknameRequest) ([]string, error)
}

// TextScorer 对文本打分，1 为无害，10 为严重违规
type TextScorer interface {
	ScoreText(ctx context.Context, text string) (Score, error)
}

// NicknameRequest 昵称生成请求
type NicknameRequest struct {
	AvatarURL string
	Gender    string
	Archetype string
	Exclude   []string // 已出现过的昵称，不应再次生成
	Count     int
}

// Score 评分结果
type Score struct {
	Value  int
	Reason string
	Raw    string // 模型原始输出，写入审计
}

var (
	// ErrMalformedResponse 模型输出无法解析
	ErrMalformedResponse = errors.New("llm: 无法解析模型输出")
)

// VendorError 模型服务调用失败
type VendorError struct {
	Op  string
	Err error
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("llm: %s 调用失败: %v", e.Op, e.Err)
}

func (e *VendorError) Unwrap() error { return e.Err }
