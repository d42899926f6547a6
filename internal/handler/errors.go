package handler

import (
	"errors"

	"citizen-system/internal/service"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError 把服务层错误翻译为统一响应
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, "记录不存在")
	case errors.Is(err, service.ErrDuplicateFace):
		response.Conflict(c, "该人脸已注册")
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, "账号已封禁或尚未激活")
	case errors.Is(err, service.ErrInvalidParent):
		response.BadRequest(c, "父评论不存在或不属于该话题")
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	default:
		logger.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
		response.ErrorWithDetails(c, 500, "服务器内部错误", err)
	}
}
