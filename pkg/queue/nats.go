package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"citizen-system/config"
	"citizen-system/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS 基于 JetStream 的任务队列
type NATS struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg config.QueueConfig
}

// Subject 任务类型对应的主题
func Subject(stream string, kind Kind) string {
	return fmt.Sprintf("%s.%s", stream, kind)
}

// ConnectNATS 连接 NATS 并确保流存在
func ConnectNATS(cfg config.QueueConfig) (*NATS, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("citizen-system"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS连接断开", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS已重连", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream上下文失败: %w", err)
	}

	q := &NATS{nc: nc, js: js, cfg: cfg}
	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *NATS) ensureStream() error {
	_, err := q.js.StreamInfo(q.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("查询流失败: %w", err)
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:       q.cfg.Stream,
		Subjects:   []string{q.cfg.Stream + ".*"},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("创建流失败: %w", err)
	}
	logger.Info("JetStream流已创建", zap.String("stream", q.cfg.Stream))
	return nil
}

// Publish 发布任务，任务ID作为去重ID，重复发布同一任务只会入队一次
func (q *NATS) Publish(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	_, err = q.js.Publish(Subject(q.cfg.Stream, job.Kind), data, nats.MsgId(job.ID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("发布任务失败: %w", err)
	}
	return nil
}

// Consume 以持久队列订阅消费任务，阻塞直到 ctx 结束。
// 成功 Ack；Drop 错误 Term；其他错误延迟 Nak，由 MaxDeliver 限制总投递次数。
func (q *NATS) Consume(ctx context.Context, handler Handler) error {
	concurrency := q.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	sub, err := q.js.QueueSubscribe(q.cfg.Stream+".*", q.cfg.Durable, func(msg *nats.Msg) {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			// 停止消费时让进行中的任务跑完，而不是中途取消
			q.handle(context.WithoutCancel(ctx), msg, handler)
		}()
	},
		nats.Durable(q.cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(q.cfg.AckWait),
		nats.MaxDeliver(q.cfg.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("订阅任务失败: %w", err)
	}
	logger.Info("开始消费任务", zap.String("stream", q.cfg.Stream), zap.String("durable", q.cfg.Durable))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		logger.Warn("订阅排空失败", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func (q *NATS) handle(ctx context.Context, msg *nats.Msg, handler Handler) {
	delivered := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
	}

	job, err := Decode(msg.Data)
	if err == nil {
		err = handler(ctx, job)
	}

	fields := []zap.Field{
		zap.String("subject", msg.Subject),
		zap.String("job_id", job.ID),
		zap.String("target_id", job.TargetID),
		zap.Uint64("delivered", delivered),
	}
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Warn("任务ACK失败", append(fields, zap.Error(ackErr))...)
		}
	case IsDrop(err):
		logger.Warn("任务被丢弃", append(fields, zap.Error(err))...)
		_ = msg.Term()
	default:
		if int(delivered) >= q.cfg.MaxDeliver {
			logger.Critical("任务投递次数耗尽，需要人工处理", append(fields, zap.Error(err))...)
			_ = msg.Term()
			return
		}
		logger.Warn("任务处理失败，稍后重新投递", append(fields, zap.Error(err))...)
		_ = msg.NakWithDelay(q.cfg.NakDelay)
	}
}

// Close 关闭连接
func (q *NATS) Close() {
	if q.nc != nil {
		q.nc.Close()
	}
}

// Healthy 连接是否可用
func (q *NATS) Healthy() bool {
	return q.nc != nil && q.nc.IsConnected()
}
