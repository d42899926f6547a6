package service

import (
	"errors"

	"citizen-system/internal/repository"
	"citizen-system/pkg/queue"
)

var (
	// ErrInvalidInput 请求或档案数据不完整，重试没有意义
	ErrInvalidInput = errors.New("输入无效")
	// ErrNotFound 目标记录不存在
	ErrNotFound = repository.ErrNotFound
	// ErrInvalidParent 父评论不存在或不属于同一话题
	ErrInvalidParent = errors.New("父评论无效")
	// ErrDuplicateFace 人脸已被其他档案注册
	ErrDuplicateFace = errors.New("人脸已注册")
	// ErrForbidden 账号已封禁或尚未激活
	ErrForbidden = errors.New("无权操作")
	// ErrBadSignature 回调签名无效
	ErrBadSignature = errors.New("签名无效")
	// ErrAmountMismatch 支付金额与入会费用不一致
	ErrAmountMismatch = errors.New("支付金额不符")
)

// storePermanent 存储操作中不值得重试的错误
func storePermanent(err error) bool {
	return repository.IsPermanent(err) || errors.Is(err, ErrInvalidInput)
}

// IsInputError 调用方的输入问题，队列不应重新投递
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidParent) ||
		errors.Is(err, repository.ErrInvalidTransition) ||
		queue.IsDrop(err)
}
