package jwt

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"citizen-system/pkg/logger"
	"citizen-system/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextUserIDKey 用户ID在gin.Context中的键名
	ContextUserIDKey = "user_id"
	// ContextClaimsKey JWT声明在gin.Context中的键名
	ContextClaimsKey = "jwt_claims"
)

// AuthMiddleware JWT认证中间件
// 从请求头中提取Authorization: Bearer <token>
// 验证token并将用户信息存入gin.Context
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "缺少Authorization请求头")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "Authorization格式错误，应为Bearer <token>")
			c.Abort()
			return
		}

		s.authenticate(c, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

// QueryTokenMiddleware 从查询参数 token 中读取令牌，用于无法设置请求头的 WebSocket 握手
func (s *JWTService) QueryTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.authenticate(c, c.Query("token"))
	}
}

func (s *JWTService) authenticate(c *gin.Context, tokenString string) {
	if tokenString == "" {
		response.Unauthorized(c, "token不能为空")
		c.Abort()
		return
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("JWT验证失败",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		response.Unauthorized(c, "token无效或已过期")
		c.Abort()
		return
	}
	c.Set(ContextUserIDKey, claims.Subject)
	c.Set(ContextClaimsKey, claims)
	c.Next()
}

// GetUserID 从gin.Context中获取用户ID
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// GetClaims 从gin.Context中获取JWT声明
func GetClaims(c *gin.Context) *SessionClaims {
	if claims, exists := c.Get(ContextClaimsKey); exists {
		if c, ok := claims.(*SessionClaims); ok {
			return c
		}
	}
	return nil
}

// SignatureMiddleware 校验队列推送签名，失败返回真实的401，队列不会把它当作成功
func SignatureMiddleware(signer *QueueSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.WithStatus(c, http.StatusBadRequest, "读取请求体失败", nil)
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if err := signer.Verify(c.GetHeader(SignatureHeader), body); err != nil {
			logger.Warn("队列签名校验失败", zap.Error(err), zap.String("path", c.Request.URL.Path))
			response.WithStatus(c, http.StatusUnauthorized, "签名无效", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
