package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"citizen-system/internal/service"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/redis"
	"citizen-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentSignatureHeader 支付回调签名请求头
const PaymentSignatureHeader = "X-Payment-Signature"

// RegistrationHandler 注册、进度查询与支付回调
type RegistrationHandler struct {
	service  *service.RegistrationService
	progress *redis.ProgressStore
}

// NewRegistrationHandler 创建RegistrationHandler实例
func NewRegistrationHandler(s *service.RegistrationService, progress *redis.ProgressStore) *RegistrationHandler {
	return &RegistrationHandler{service: s, progress: progress}
}

// Register 提交注册
func (h *RegistrationHandler) Register(c *gin.Context) {
	type req struct {
		Email   string `json:"email"`
		FaceURL string `json:"face_url" binding:"required"`
		StyleID string `json:"style_id" binding:"required"`
		Gender  string `json:"gender" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, err := h.service.Register(c.Request.Context(), service.RegistrationInput{
		Email:   r.Email,
		FaceURL: r.FaceURL,
		StyleID: r.StyleID,
		Gender:  r.Gender,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "注册已提交，请完成支付", response.FilterProfileInfo(p))
}

// GetRegistration 查询档案
func (h *RegistrationHandler) GetRegistration(c *gin.Context) {
	p, err := h.service.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, response.FilterProfileInfo(p))
}

// GetProgress 轮询激活进度
func (h *RegistrationHandler) GetProgress(c *gin.Context) {
	p, err := h.progress.Read(c.Request.Context(), c.Param("id"))
	if errors.Is(err, redis.ErrProgressNotFound) {
		response.NotFound(c, "暂无进度")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, p)
}

// PaymentWebhook 支付回调。
// 使用真实状态码：非2xx时支付平台会重试回调。
func (h *RegistrationHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.WithStatus(c, http.StatusBadRequest, "读取请求体失败", nil)
		return
	}
	if err := h.service.VerifyPaymentSignature(body, c.GetHeader(PaymentSignatureHeader)); err != nil {
		logger.Warn("支付回调签名无效", zap.String("ip", c.ClientIP()))
		response.WithStatus(c, http.StatusUnauthorized, "签名无效", nil)
		return
	}

	var ev service.PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.ProfileID == "" {
		response.WithStatus(c, http.StatusBadRequest, "回调内容无效", nil)
		return
	}

	applied, err := h.service.ConfirmPayment(c.Request.Context(), ev)
	switch {
	case err == nil:
		response.WithStatus(c, http.StatusOK, "ok", gin.H{"applied": applied})
	case errors.Is(err, service.ErrNotFound):
		response.WithStatus(c, http.StatusNotFound, "档案不存在", nil)
	case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrInvalidInput):
		response.WithStatus(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		logger.Error("处理支付回调失败", zap.String("event_id", ev.EventID), zap.Error(err))
		response.WithStatus(c, http.StatusInternalServerError, "处理失败", nil)
	}
}
