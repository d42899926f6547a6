// Package websocket 激活进度的单向推送
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"citizen-system/config"
	"citizen-system/pkg/jwt"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// Handler 进度推送处理器
type Handler struct {
	progress *redis.ProgressStore
	manager  *Manager
	cfg      config.WebSocketConfig
}

// NewHandler 创建进度推送处理器
func NewHandler(progress *redis.ProgressStore, manager *Manager, cfg config.WebSocketConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	return &Handler{progress: progress, manager: manager, cfg: cfg}
}

// Serve Gin路由处理函数，需挂在 QueryTokenMiddleware 之后。
// 连接建立后先推送当前快照，之后转发每一次进度事件；客户端发来的消息一律忽略。
func (h *Handler) Serve(c *gin.Context) {
	profileID := jwt.GetUserID(c)

	// 回显子协议，避免客户端提示 "Server sent no subprotocol"
	respHeader := http.Header{}
	if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
		respHeader.Set("Sec-WebSocket-Protocol", protocol)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &Client{ProfileID: profileID, Conn: conn, Send: make(chan []byte, 16)}
	h.manager.AddClient(client)
	defer h.manager.RemoveClient(client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 先订阅再读快照，避免两者之间的事件丢失
	sub := h.progress.Subscribe(ctx, profileID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		logger.Warn("订阅进度事件失败", zap.String("profile_id", profileID), zap.Error(err))
		return
	}

	snapshot, err := h.progress.Read(ctx, profileID)
	switch {
	case err == nil:
		if b, e := json.Marshal(snapshot); e == nil {
			client.Send <- b
		}
	case !errors.Is(err, redis.ErrProgressNotFound):
		logger.Warn("读取进度快照失败", zap.String("profile_id", profileID), zap.Error(err))
	}

	go h.forward(ctx, sub.Channel(), client)
	go h.writeLoop(ctx, cancel, client)

	// 读协程只处理心跳；超时未收到任何读事件则断开
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
}

// forward 把订阅到的事件放入发送队列，队列满时丢弃（下次事件或快照会覆盖）
func (h *Handler) forward(ctx context.Context, events <-chan *goredis.Message, client *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			select {
			case client.Send <- []byte(msg.Payload):
			default:
				logger.Debug("进度推送队列已满，丢弃事件", zap.String("profile_id", client.ProfileID))
			}
		}
	}
}

// writeLoop 唯一的写协程：发送进度并定时ping
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, client *Client) {
	defer cancel()
	// 写失败时关闭连接，让读协程退出
	defer client.Conn.Close()
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
