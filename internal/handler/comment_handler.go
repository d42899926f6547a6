package handler

import (
	"strconv"

	"citizen-system/internal/service"
	"citizen-system/pkg/jwt"
	"citizen-system/pkg/response"

	"github.com/gin-gonic/gin"
)

// CommentHandler 评论处理器
type CommentHandler struct {
	service *service.CommentService
}

// NewCommentHandler 创建CommentHandler实例
func NewCommentHandler(s *service.CommentService) *CommentHandler {
	return &CommentHandler{service: s}
}

// CreateComment 发表评论（需要JWT认证）
func (h *CommentHandler) CreateComment(c *gin.Context) {
	type req struct {
		ParentID string `json:"parent_id"`
		Body     string `json:"body" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	comment, err := h.service.CreateComment(c.Request.Context(), jwt.GetUserID(c), c.Param("topic_id"), r.ParentID, r.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithMessage(c, "评论已发布", response.FilterCommentInfo(comment))
}

// ListComments 获取话题评论
func (h *CommentHandler) ListComments(c *gin.Context) {
	// 获取分页参数
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if err != nil || pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	comments, err := h.service.ListComments(c.Request.Context(), c.Param("topic_id"), pageSize, (page-1)*pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	list := make([]*response.CommentInfo, 0, len(comments))
	for _, cm := range comments {
		list = append(list, response.FilterCommentInfo(cm))
	}
	response.Success(c, gin.H{
		"comments":  list,
		"page":      page,
		"page_size": pageSize,
	})
}
