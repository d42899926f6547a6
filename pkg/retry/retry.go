// Package retry 提供存储操作的有界重试包装。
//
// 只用于假定为瞬时故障的存储操作（连接中断、锁等待超时等），
// 不用于外部服务调用：外部服务失败应直接走失败路径。
package retry

import (
	"context"
	"errors"
	"time"

	"citizen-system/config"
	"citizen-system/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 1500 * time.Millisecond
)

// Policy 重试策略：固定间隔，不做指数退避
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Permanent 判定错误是否不可重试（记录不存在、输入错误等）
	Permanent func(error) bool
	// OnAttempt 每次失败后回调，attempt 从1开始（用于指标）
	OnAttempt func(name string, attempt int, err error)
}

// DefaultPolicy 默认策略：3次，间隔1.5秒
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// FromConfig 按配置构造策略，未配置的字段使用默认值
func FromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Delay > 0 {
		p.Delay = cfg.Delay
	}
	return p
}

// ErrExhausted 重试次数耗尽，errors.Is 可识别；原始错误同样保留在链上
var ErrExhausted = errors.New("retry attempts exhausted")

type exhaustedError struct {
	name     string
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return e.name + ": " + ErrExhausted.Error() + ": " + e.last.Error()
}

func (e *exhaustedError) Unwrap() []error { return []error{ErrExhausted, e.last} }

// Do 执行 op，失败后按固定间隔重试，最多 MaxAttempts 次。
// 全部失败时返回最后一次的错误（包装了 ErrExhausted）。
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	stopped := false
	var lastErr error
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || (p.Permanent != nil && p.Permanent(err)) {
			stopped = true
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		if p.OnAttempt != nil {
			p.OnAttempt(name, attempt, err)
		}
		logger.Warn("存储操作失败，准备重试",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("next_delay", next),
			zap.Error(err),
		)
	}

	v, err := backoff.RetryNotifyWithData(operation, b, notify)
	if err == nil {
		return v, nil
	}

	// 不可重试的错误、上下文取消原样返回
	if stopped || ctx.Err() != nil || lastErr == nil {
		return v, err
	}
	if p.OnAttempt != nil {
		p.OnAttempt(name, attempt, lastErr)
	}
	logger.Critical("存储操作重试次数耗尽",
		zap.String("operation", name),
		zap.Int("attempts", attempt),
		zap.Error(lastErr),
	)
	return v, &exhaustedError{name: name, attempts: attempt, last: lastErr}
}

// Exec 无返回值版本
func Exec(ctx context.Context, p Policy, name string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
