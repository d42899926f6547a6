// Package queue 任务投递：NATS JetStream 与进程内两种实现
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// Kind 任务类型
type Kind string

const (
	KindActivation Kind = "activation"
	KindModeration Kind = "moderation"
)

// Job 任务信封。队列只保证至少一次投递，处理方必须幂等。
type Job struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	TargetID   string    `json:"targetId"` // 档案ID或评论ID
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewJob 创建任务，ID 为 ksuid，按时间有序
func NewJob(kind Kind, targetID string) Job {
	return Job{
		ID:         ksuid.New().String(),
		Kind:       kind,
		TargetID:   targetID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate 检查信封字段
func (j Job) Validate() error {
	if j.Kind != KindActivation && j.Kind != KindModeration {
		return fmt.Errorf("未知的任务类型 %q", j.Kind)
	}
	if j.TargetID == "" {
		return errors.New("任务缺少targetId")
	}
	return nil
}

// Encode 序列化
func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// Decode 反序列化并校验
func Decode(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, Drop(fmt.Errorf("任务解析失败: %w", err))
	}
	if err := j.Validate(); err != nil {
		return Job{}, Drop(err)
	}
	return j, nil
}

// Publisher 任务发布
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Handler 任务处理函数
type Handler func(ctx context.Context, job Job) error

// dropError 标记无需重新投递的失败（输入错误、数据不存在等）
type dropError struct{ err error }

func (e *dropError) Error() string { return e.err.Error() }
func (e *dropError) Unwrap() error { return e.err }

// Drop 包装一个不应重试的错误
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return &dropError{err: err}
}

// IsDrop 判断错误是否不应重试
func IsDrop(err error) bool {
	var d *dropError
	return errors.As(err, &d)
}
