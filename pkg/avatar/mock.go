package avatar

import (
	"context"
	"fmt"
	"time"
)

// Mock 本地开发用的头像生成器，固定延迟后返回确定性的候选地址
type Mock struct {
	Delay   time.Duration
	BaseURL string
	Count   int
}

// NewMock 创建模拟头像生成器
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay, BaseURL: "https://avatars.mock.local", Count: 4}
}

func (m *Mock) GenerateAvatar(ctx context.Context, req Request) ([]string, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, &VendorError{Err: ctx.Err()}
		}
	}
	urls := make([]string, m.Count)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/%s/%s-%d.png", m.BaseURL, req.SubjectID, req.Archetype, i+1)
	}
	return urls, nil
}
