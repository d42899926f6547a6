package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"citizen-system/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Local 进程内队列，开发环境无需 NATS。
// 投递语义与 JetStream 消费者一致：失败按固定间隔重试至多 maxDeliver 次，Drop 错误不重试。
type Local struct {
	mu         sync.RWMutex
	handler    Handler
	maxDeliver int
	delay      time.Duration
	wg         sync.WaitGroup
}

// NewLocal 创建进程内队列，处理函数通过 Bind 绑定
func NewLocal(maxDeliver int, delay time.Duration) *Local {
	if maxDeliver <= 0 {
		maxDeliver = 1
	}
	return &Local{maxDeliver: maxDeliver, delay: delay}
}

// Bind 绑定处理函数
func (l *Local) Bind(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// Publish 异步处理任务，不等待结果
func (l *Local) Publish(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	l.mu.RLock()
	h := l.handler
	l.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("本地队列未绑定处理函数")
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.deliver(context.WithoutCancel(ctx), h, job)
	}()
	return nil
}

// deliver 按固定间隔重新投递，直到成功、被 Drop 或次数耗尽
func (l *Local) deliver(ctx context.Context, h Handler, job Job) {
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("target_id", job.TargetID),
	}

	delivered := 0
	var b backoff.BackOff = backoff.NewConstantBackOff(l.delay)
	b = backoff.WithMaxRetries(b, uint64(l.maxDeliver-1))

	err := backoff.RetryNotify(func() error {
		delivered++
		err := h(ctx, job)
		if err != nil && IsDrop(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		logger.Warn("本地任务处理失败，稍后重新投递",
			append(fields, zap.Int("delivered", delivered), zap.Duration("next_delay", next), zap.Error(err))...)
	})

	switch {
	case err == nil:
	case IsDrop(err):
		logger.Warn("本地任务被丢弃", append(fields, zap.Error(err))...)
	default:
		logger.Critical("本地任务投递次数耗尽，需要人工处理",
			append(fields, zap.Int("delivered", delivered), zap.Error(err))...)
	}
}

// Wait 等待所有已发布任务处理完成
func (l *Local) Wait() {
	l.wg.Wait()
}
