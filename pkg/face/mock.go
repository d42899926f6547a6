package face

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var mockNamespace = uuid.MustParse("6f1c2a5e-3b7d-4c1e-9a0f-5d2b8e4c7a10")

// Mock 本地开发用的人脸服务：固定延迟，同一档案总是得到同一个人脸ID，从不判定重复
type Mock struct {
	Delay time.Duration
}

// NewMock 创建模拟人脸服务
func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay}
}

func (m *Mock) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		if err := ctx.Err(); err != nil {
			return &VendorError{Op: "mock", Err: err}
		}
		return nil
	}
	t := time.NewTimer(m.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &VendorError{Op: "mock", Err: ctx.Err()}
	}
}

func (m *Mock) IndexFace(ctx context.Context, _ string, subjectID string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	return uuid.NewSHA1(mockNamespace, []byte(subjectID)).String(), nil
}

func (m *Mock) SearchSimilar(ctx context.Context, _ string) (Match, error) {
	if err := m.wait(ctx); err != nil {
		return Match{}, err
	}
	return Match{}, nil
}
