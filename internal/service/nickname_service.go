package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"citizen-system/internal/repository"
	"citizen-system/pkg/llm"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/retry"

	"go.uber.org/zap"
)

const (
	nicknameBatchSize   = 10
	nicknameMaxAttempts = 3
	nicknameMinLen      = 3
	nicknameMaxLen      = 24
	fallbackArchetype   = "citizen"
)

var (
	nicknameDisallowed  = regexp.MustCompile(`[^A-Za-z0-9_]`)
	archetypeDisallowed = regexp.MustCompile(`[^a-z0-9_]`)

	// 模型偶尔会把字段名或类型名当作昵称返回
	reservedNicknames = map[string]bool{
		"null": true, "undefined": true, "array": true, "object": true,
		"string": true, "nickname": true, "name": true, "none": true,
	}
)

// NicknameRequest 昵称解析输入
type NicknameRequest struct {
	AvatarRef string
	Gender    string
	Archetype string
}

// NicknameResolution 解析结果：最终昵称与需要发布的候选集（包含最终昵称）
type NicknameResolution struct {
	Nickname string
	Options  []string
	Fallback bool
}

// NicknameService 生成一个当前未被占用的昵称
type NicknameService struct {
	generator     NicknameGenerator
	profiles      *repository.ProfileRepository
	policy        retry.Policy
	vendorTimeout time.Duration // 每次生成调用各自的超时，<=0 不限制
	now           func() time.Time
}

// NewNicknameService 创建昵称服务
func NewNicknameService(gen NicknameGenerator, profiles *repository.ProfileRepository, policy retry.Policy, vendorTimeout time.Duration) *NicknameService {
	return &NicknameService{generator: gen, profiles: profiles, policy: policy, vendorTimeout: vendorTimeout, now: time.Now}
}

// ResolveUniqueNickname 返回一个未被占用的昵称
func (s *NicknameService) ResolveUniqueNickname(ctx context.Context, avatarRef, gender, archetype string) (string, error) {
	res, err := s.Resolve(ctx, NicknameRequest{AvatarRef: avatarRef, Gender: gender, Archetype: archetype})
	if err != nil {
		return "", err
	}
	return res.Nickname, nil
}

// Resolve 至多请求3批候选，每批清洗后一次查询占用情况，取第一个可用的。
// 每一轮都把见过的候选加入排除集；3批都不可用时使用确定性的兜底昵称。
// 生成服务失败直接返回错误。
func (s *NicknameService) Resolve(ctx context.Context, req NicknameRequest) (NicknameResolution, error) {
	seen := make(map[string]bool)
	var exclude []string

	for attempt := 1; attempt <= nicknameMaxAttempts; attempt++ {
		raw, err := withTimeout(ctx, s.vendorTimeout, func(ctx context.Context) ([]string, error) {
			return s.generator.GenerateNicknameCandidates(ctx, llm.NicknameRequest{
				AvatarURL: req.AvatarRef,
				Gender:    req.Gender,
				Archetype: req.Archetype,
				Exclude:   exclude,
				Count:     nicknameBatchSize,
			})
		})
		if err != nil {
			return NicknameResolution{}, fmt.Errorf("生成昵称候选失败: %w", err)
		}

		var fresh []string
		for _, c := range CleanNicknames(raw) {
			key := strings.ToLower(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			exclude = append(exclude, c)
			fresh = append(fresh, c)
		}
		if len(fresh) == 0 {
			logger.Warn("本轮没有可用的昵称候选", zap.Int("attempt", attempt), zap.Int("raw", len(raw)))
			continue
		}

		taken, err := retry.Do(ctx, s.policy, "nickname.taken", func(ctx context.Context) (map[string]bool, error) {
			return s.profiles.TakenNicknames(ctx, fresh)
		})
		if err != nil {
			return NicknameResolution{}, err
		}

		var free []string
		for _, c := range fresh {
			if !taken[strings.ToLower(c)] {
				free = append(free, c)
			}
		}
		if len(free) > 0 {
			return NicknameResolution{Nickname: free[0], Options: free}, nil
		}
		logger.Info("本轮昵称候选均已被占用", zap.Int("attempt", attempt), zap.Strings("candidates", fresh))
	}

	name := FallbackNickname(req.Archetype, s.now())
	logger.Warn("昵称候选耗尽，使用兜底昵称", zap.String("nickname", name))
	return NicknameResolution{Nickname: name, Options: []string{name}, Fallback: true}, nil
}

// CleanNicknames 去空白、去除非法字符、限制长度、过滤保留词并去重（不区分大小写）
func CleanNicknames(raw []string) []string {
	out := make([]string, 0, len(raw))
	dedup := make(map[string]bool, len(raw))
	for _, r := range raw {
		c := nicknameDisallowed.ReplaceAllString(strings.TrimSpace(r), "")
		if len(c) < nicknameMinLen || len(c) > nicknameMaxLen {
			continue
		}
		key := strings.ToLower(c)
		if reservedNicknames[key] || dedup[key] {
			continue
		}
		dedup[key] = true
		out = append(out, c)
	}
	return out
}

// FallbackNickname 兜底昵称：{原型小写}_{毫秒时间戳后6位}
func FallbackNickname(archetype string, now time.Time) string {
	base := archetypeDisallowed.ReplaceAllString(strings.ToLower(archetype), "")
	if base == "" {
		base = fallbackArchetype
	}
	return fmt.Sprintf("%s_%06d", base, now.UnixMilli()%1_000_000)
}
