package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"citizen-system/config"
	"citizen-system/internal/model"
	"citizen-system/internal/repository"
	"citizen-system/pkg/face"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/queue"
	"citizen-system/pkg/retry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// PaymentSucceeded 支付成功事件状态
const PaymentSucceeded = "succeeded"

var allowedGenders = map[string]bool{"male": true, "female": true, "other": true}

// RegistrationInput 注册提交
type RegistrationInput struct {
	Email   string
	FaceURL string
	StyleID string
	Gender  string
}

// PaymentEvent 支付回调事件
type PaymentEvent struct {
	EventID   string `json:"eventId"`
	ProfileID string `json:"profileId"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

// RegistrationService 注册、支付确认与运维重置
type RegistrationService struct {
	profiles      *repository.ProfileRepository
	faces         FaceIndexer
	publisher     JobPublisher
	policy        retry.Policy
	styles        map[string]bool
	fee           decimal.Decimal
	currency      string
	webhookSecret []byte
	vendorTimeout time.Duration
}

// NewRegistrationService 创建注册服务，入会费用配置非法时返回错误
func NewRegistrationService(profiles *repository.ProfileRepository, faces FaceIndexer, publisher JobPublisher, cfg *config.Config) (*RegistrationService, error) {
	fee, err := decimal.NewFromString(cfg.Payment.Fee)
	if err != nil {
		return nil, fmt.Errorf("入会费用配置无效 %q: %w", cfg.Payment.Fee, err)
	}
	styles := make(map[string]bool, len(cfg.Styles))
	for _, st := range cfg.Styles {
		styles[st.ID] = true
	}
	policy := retry.FromConfig(cfg.Retry)
	policy.Permanent = storePermanent
	return &RegistrationService{
		profiles:      profiles,
		faces:         faces,
		publisher:     publisher,
		policy:        policy,
		styles:        styles,
		fee:           fee,
		currency:      cfg.Payment.Currency,
		webhookSecret: []byte(cfg.Payment.WebhookSecret),
		vendorTimeout: cfg.Vendors.Timeout,
	}, nil
}

// Register 校验输入并做人脸查重，通过后创建 STAGING 档案
func (s *RegistrationService) Register(ctx context.Context, in RegistrationInput) (*model.Profile, error) {
	in.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	in.FaceURL = strings.TrimSpace(in.FaceURL)
	if u, err := url.Parse(in.FaceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("人脸图片地址无效: %w", ErrInvalidInput)
	}
	if !s.styles[in.StyleID] {
		return nil, fmt.Errorf("未知的风格 %q: %w", in.StyleID, ErrInvalidInput)
	}
	if !allowedGenders[in.Gender] {
		return nil, fmt.Errorf("未知的性别 %q: %w", in.Gender, ErrInvalidInput)
	}

	match, err := withTimeout(ctx, s.vendorTimeout, func(ctx context.Context) (face.Match, error) {
		return s.faces.SearchSimilar(ctx, in.FaceURL)
	})
	switch {
	case errors.Is(err, face.ErrImageFetch), errors.Is(err, face.ErrImageTooLarge), errors.Is(err, face.ErrNoFace):
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case err != nil:
		return nil, err
	case match.Duplicate:
		logger.Warn("人脸查重命中", zap.String("existing_profile", match.SubjectID), zap.Float32("similarity", match.Similarity))
		return nil, ErrDuplicateFace
	}

	p := &model.Profile{
		ID:         uuid.NewString(),
		Email:      strings.TrimSpace(in.Email),
		Status:     model.StatusStaging,
		TmpFaceURL: &in.FaceURL,
		StyleID:    &in.StyleID,
		Gender:     &in.Gender,
		RegMeta:    datatypes.NewJSONType(model.RegMeta{Step: "STAGED"}),
	}
	if err := retry.Exec(ctx, s.policy, "registration.create", func(ctx context.Context) error {
		return s.profiles.Create(ctx, p)
	}); err != nil {
		return nil, err
	}
	logger.Info("注册已暂存，等待支付", zap.String("profile_id", p.ID))
	return p, nil
}

// VerifyPaymentSignature 校验回调签名：hex(HMAC-SHA256(secret, body))
func (s *RegistrationService) VerifyPaymentSignature(body []byte, signature string) error {
	if len(s.webhookSecret) == 0 {
		return fmt.Errorf("未配置回调密钥: %w", ErrBadSignature)
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// SignPayment 生成回调签名（测试与压测工具使用）
func SignPayment(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ConfirmPayment 处理支付成功回调，返回是否推进了状态。
// 只有 STAGING/PAID 状态会处理（在行锁内判断）：回调重复投递时档案可能已在激活中或已失败，
// 失败档案只能由运维重置，不能被回调重新拉起。
// 档案处于 PAID 时总会投递激活任务，重复任务由激活的幂等性吸收，
// 这样上一次投递失败时回调重试仍能补上。
func (s *RegistrationService) ConfirmPayment(ctx context.Context, ev PaymentEvent) (bool, error) {
	if ev.Status != PaymentSucceeded {
		logger.Info("忽略非成功的支付事件", zap.String("event_id", ev.EventID), zap.String("status", ev.Status))
		return false, nil
	}
	amount, err := decimal.NewFromString(ev.Amount)
	if err != nil {
		return false, fmt.Errorf("金额格式错误 %q: %w", ev.Amount, ErrInvalidInput)
	}
	if !amount.Equal(s.fee) || !strings.EqualFold(ev.Currency, s.currency) {
		logger.Warn("支付金额不符",
			zap.String("event_id", ev.EventID),
			zap.String("profile_id", ev.ProfileID),
			zap.String("amount", amount.String()),
			zap.String("expected", s.fee.String()),
		)
		return false, ErrAmountMismatch
	}

	p, err := retry.Do(ctx, s.policy, "payment.load", func(ctx context.Context) (*model.Profile, error) {
		return s.profiles.GetByID(ctx, ev.ProfileID)
	})
	if err != nil {
		return false, err
	}
	if p.Status != model.StatusStaging && p.Status != model.StatusPaid {
		logger.Info("档案已越过支付阶段，忽略回调", zap.String("profile_id", p.ID), zap.String("status", string(p.Status)))
		return false, nil
	}

	t, err := retry.Do(ctx, s.policy, "payment.advance", func(ctx context.Context) (repository.Transition, error) {
		return s.profiles.Advance(ctx, p.ID, model.StatusPaid, model.RegMeta{Step: "PAID", Note: "payment " + ev.EventID},
			model.StatusStaging, model.StatusPaid)
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		// 读取之后档案被推进（或激活失败）
		logger.Info("档案已越过支付阶段，忽略回调", zap.String("profile_id", p.ID), zap.Error(err))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.publisher.Publish(ctx, queue.NewJob(queue.KindActivation, p.ID)); err != nil {
		return t.Applied, fmt.Errorf("投递激活任务失败: %w", err)
	}
	logger.Info("支付已确认，激活任务已投递", zap.String("profile_id", p.ID), zap.Bool("applied", t.Applied))
	return t.Applied, nil
}

// GetProfile 获取档案
func (s *RegistrationService) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

// ListFailed 列出激活失败的档案
func (s *RegistrationService) ListFailed(ctx context.Context, limit int) ([]model.Profile, error) {
	return s.profiles.ListByStatus(ctx, model.StatusActivationFailed, limit)
}

// ResetFailed 运维显式重置：ACTIVATION_FAILED -> PAID 并重新投递激活任务
func (s *RegistrationService) ResetFailed(ctx context.Context, id, operator string) error {
	prev, err := s.profiles.ResetFailed(ctx, id, model.RegMeta{Step: "RESET", Note: "reset by " + operator})
	if errors.Is(err, repository.ErrInvalidTransition) {
		return fmt.Errorf("只能重置激活失败的档案: %w", errors.Join(ErrInvalidInput, err))
	}
	if err != nil {
		return err
	}
	logger.Info("激活失败的档案已重置",
		zap.String("profile_id", id),
		zap.String("operator", operator),
		zap.String("previous_step", prev.Step),
		zap.String("previous_error", prev.Error),
	)
	return s.publisher.Publish(ctx, queue.NewJob(queue.KindActivation, id))
}
