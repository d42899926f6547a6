// Package worker 把队列任务和 HTTP 推送的任务分发给对应的服务
package worker

import (
	"context"
	"fmt"
	"time"

	"citizen-system/internal/service"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/metrics"
	"citizen-system/pkg/queue"

	"go.uber.org/zap"
)

// 任务来源，用于指标标签
const (
	TransportQueue = "queue"
	TransportHTTP  = "http"
)

// Activator 激活执行方
type Activator interface {
	ActivateJob(ctx context.Context, profileID, jobID string) error
}

// Moderator 审核执行方
type Moderator interface {
	Moderate(ctx context.Context, commentID string) (service.ModerationResult, error)
}

// Dispatcher 任务分发器
type Dispatcher struct {
	activation Activator
	moderation Moderator
	metrics    *metrics.Metrics
	jobTimeout time.Duration
}

// NewDispatcher 创建分发器，jobTimeout 为单次激活任务的总超时
func NewDispatcher(a Activator, m Moderator, mt *metrics.Metrics, jobTimeout time.Duration) *Dispatcher {
	return &Dispatcher{activation: a, moderation: m, metrics: mt, jobTimeout: jobTimeout}
}

// Handle 队列消费入口。输入类错误包装为 Drop，队列不再重新投递。
func (d *Dispatcher) Handle(ctx context.Context, job queue.Job) error {
	d.metrics.IncJob(TransportQueue, string(job.Kind))

	var err error
	switch job.Kind {
	case queue.KindActivation:
		err = d.activate(ctx, job.TargetID, job.ID)
	case queue.KindModeration:
		_, err = d.moderation.Moderate(ctx, job.TargetID)
	default:
		return queue.Drop(fmt.Errorf("未知的任务类型 %q", job.Kind))
	}

	if err != nil && service.IsInputError(err) {
		logger.Warn("任务输入无效，丢弃",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.String("target_id", job.TargetID),
			zap.Error(err),
		)
		return queue.Drop(err)
	}
	return err
}

// Activate HTTP 推送的激活任务
func (d *Dispatcher) Activate(ctx context.Context, profileID string) error {
	d.metrics.IncJob(TransportHTTP, string(queue.KindActivation))
	return d.activate(ctx, profileID, "")
}

// Moderate HTTP 推送的审核任务，同步返回结果
func (d *Dispatcher) Moderate(ctx context.Context, commentID string) (service.ModerationResult, error) {
	d.metrics.IncJob(TransportHTTP, string(queue.KindModeration))
	return d.moderation.Moderate(ctx, commentID)
}

func (d *Dispatcher) activate(ctx context.Context, profileID, jobID string) error {
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}
	return d.activation.ActivateJob(ctx, profileID, jobID)
}
