package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"citizen-system/internal/service"
	"citizen-system/internal/worker"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JobHandler 队列推送入口，返回真实状态码供队列判断是否重新投递
type JobHandler struct {
	dispatcher *worker.Dispatcher
	wg         sync.WaitGroup
}

// NewJobHandler 创建JobHandler实例
func NewJobHandler(d *worker.Dispatcher) *JobHandler {
	return &JobHandler{dispatcher: d}
}

// Activation 激活任务：立即返回202，后台继续执行
func (h *JobHandler) Activation(c *gin.Context) {
	type req struct {
		UserID string `json:"userId" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.WithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	// 请求结束后任务继续执行
	ctx := context.WithoutCancel(c.Request.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.dispatcher.Activate(ctx, r.UserID); err != nil {
			logger.Error("激活任务执行失败", zap.String("profile_id", r.UserID), zap.Error(err))
		}
	}()

	response.WithStatus(c, http.StatusAccepted, "accepted", gin.H{"userId": r.UserID})
}

// Moderation 审核任务：同步返回审核结果
func (h *JobHandler) Moderation(c *gin.Context) {
	type req struct {
		CommentID string `json:"commentId" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.WithStatus(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	res, err := h.dispatcher.Moderate(c.Request.Context(), r.CommentID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, response.ModerationJobResponse{
			Moderated: res.Moderated,
			Blocked:   res.Blocked,
			Score:     res.Score,
		})
	case errors.Is(err, service.ErrNotFound):
		response.WithStatus(c, http.StatusNotFound, "评论不存在", nil)
	case service.IsInputError(err):
		response.WithStatus(c, http.StatusBadRequest, err.Error(), nil)
	default:
		logger.Error("审核任务执行失败", zap.String("comment_id", r.CommentID), zap.Error(err))
		response.WithStatus(c, http.StatusInternalServerError, "审核失败", nil)
	}
}

// Wait 等待后台执行中的激活任务结束（优雅关闭时使用）
func (h *JobHandler) Wait() {
	h.wg.Wait()
}
