package websocket

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client 一个进度订阅连接
type Client struct {
	ProfileID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// Manager 管理所有进度订阅连接，同一档案允许多个连接（多标签页）
type Manager struct {
	clients map[string]map[*Client]struct{}
	lock    sync.RWMutex
}

// NewManager 创建连接管理器
func NewManager() *Manager {
	return &Manager{clients: make(map[string]map[*Client]struct{})}
}

// AddClient 添加新连接
func (m *Manager) AddClient(c *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	set, ok := m.clients[c.ProfileID]
	if !ok {
		set = make(map[*Client]struct{})
		m.clients[c.ProfileID] = set
	}
	set[c] = struct{}{}
}

// RemoveClient 移除连接
func (m *Manager) RemoveClient(c *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	set := m.clients[c.ProfileID]
	delete(set, c)
	if len(set) == 0 {
		delete(m.clients, c.ProfileID)
	}
}

// Count 档案当前的连接数
func (m *Manager) Count(profileID string) int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients[profileID])
}

// CloseAll 关闭所有连接，读协程随之退出（优雅关闭时使用）
func (m *Manager) CloseAll() {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, set := range m.clients {
		for c := range set {
			_ = c.Conn.Close()
		}
	}
}
