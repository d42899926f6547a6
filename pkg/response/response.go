package response

import (
	"net/http"

	"citizen-system/internal/model"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`            // 状态码：0表示成功，其他表示错误
	Message string      `json:"message"`         // 响应消息
	Data    interface{} `json:"data,omitempty"`  // 响应数据
	Error   string      `json:"error,omitempty"` // 错误详情（仅在开发环境显示）
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithDetails 带错误详情的错误响应
func ErrorWithDetails(c *gin.Context, code int, message string, err error) {
	response := Response{
		Code:    code,
		Message: message,
	}

	// 在开发环境下显示错误详情
	if gin.Mode() == gin.DebugMode && err != nil {
		response.Error = err.Error()
	}

	c.JSON(http.StatusOK, response)
}

// WithStatus 使用真实HTTP状态码的响应。
// 队列推送接口依赖状态码判断是否重新投递，不能统一返回200。
func WithStatus(c *gin.Context, status int, message string, data interface{}) {
	code := 0
	if status >= http.StatusBadRequest {
		code = status
	}
	c.JSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	Error(c, 400, message)
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, 401, message)
}

// Forbidden 403错误
func Forbidden(c *gin.Context, message string) {
	Error(c, 403, message)
}

// NotFound 404错误
func NotFound(c *gin.Context, message string) {
	Error(c, 404, message)
}

// Conflict 409错误
func Conflict(c *gin.Context, message string) {
	Error(c, 409, message)
}

// InternalError 500错误
func InternalError(c *gin.Context, message string) {
	Error(c, 500, message)
}

// ProfileInfo 档案信息（不含暂存字段与人脸ID）
type ProfileInfo struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CitizenID *int64 `json:"citizen_id,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Warnings  int    `json:"warnings"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// FilterProfileInfo 过滤档案信息，隐藏敏感字段
func FilterProfileInfo(p *model.Profile) *ProfileInfo {
	if p == nil {
		return nil
	}

	return &ProfileInfo{
		ID:        p.ID,
		Status:    string(p.Lifecycle()),
		CitizenID: p.CitizenID,
		Nickname:  model.Deref(p.Nickname),
		AvatarURL: model.Deref(p.AvatarURL),
		Warnings:  p.Warnings,
		CreatedAt: p.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: p.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// CommentInfo 评论信息
type CommentInfo struct {
	ID        string `json:"id"`
	TopicID   string `json:"topic_id"`
	AuthorID  string `json:"author_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// FilterCommentInfo 转换评论信息
func FilterCommentInfo(c *model.Comment) *CommentInfo {
	if c == nil {
		return nil
	}

	return &CommentInfo{
		ID:        c.ID,
		TopicID:   c.TopicID,
		AuthorID:  c.AuthorID,
		ParentID:  model.Deref(c.ParentID),
		Body:      c.Body,
		CreatedAt: c.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ModerationJobResponse 审核任务的同步结果
type ModerationJobResponse struct {
	Moderated bool `json:"moderated"`
	Blocked   bool `json:"blocked"`
	Score     int  `json:"score"`
}
