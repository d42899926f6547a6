package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 激活进度相关常量
const (
	ProgressKeyPrefix     = "citizen:progress:"        // 进度文档key前缀
	ProgressChannelPrefix = "citizen:progress:events:" // 进度事件频道前缀
	DefaultProgressTTL    = 24 * time.Hour
)

// ProgressState 进度文档的整体状态
type ProgressState string

const (
	ProgressRunning ProgressState = "running"
	ProgressDone    ProgressState = "done"
	ProgressFailed  ProgressState = "failed"
)

// ErrProgressNotFound 进度文档不存在或已过期
var ErrProgressNotFound = errors.New("进度不存在")

// Progress 供前端展示的激活进度，只做展示，不参与流程协调
type Progress struct {
	ProfileID string        `json:"profileId"`
	Step      string        `json:"step"`
	State     ProgressState `json:"state"`
	Error     string        `json:"error,omitempty"`
	CitizenID int64         `json:"citizenId,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ProgressStore 进度文档存储：最新快照写入key，同时发布到频道供推送
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProgressStore 创建进度存储
func NewProgressStore(c *redis.Client, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressStore{client: c, ttl: ttl}
}

func progressKey(profileID string) string {
	return ProgressKeyPrefix + profileID
}

// ProgressChannel 档案对应的事件频道
func ProgressChannel(profileID string) string {
	return ProgressChannelPrefix + profileID
}

// Write 覆盖写入进度快照并发布事件
func (s *ProgressStore) Write(ctx context.Context, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化进度失败: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, progressKey(p.ProfileID), data, s.ttl)
		pipe.Publish(ctx, ProgressChannel(p.ProfileID), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入进度失败: %w", err)
	}
	return nil
}

// Read 读取最新进度快照
func (s *ProgressStore) Read(ctx context.Context, profileID string) (*Progress, error) {
	data, err := s.client.Get(ctx, progressKey(profileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取进度失败: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("反序列化进度失败: %w", err)
	}
	return &p, nil
}

// Subscribe 订阅档案的进度事件，调用方负责关闭
func (s *ProgressStore) Subscribe(ctx context.Context, profileID string) *redis.PubSub {
	return s.client.Subscribe(ctx, ProgressChannel(profileID))
}
