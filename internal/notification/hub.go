package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type clientConn struct {
	conn      *websocket.Conn
	workflows map[string]struct{} // 订阅的工作流ID，空集合表示订阅全部
	mu        sync.Mutex
}

func (c *clientConn) subscribed(workflowID string) bool {
	if len(c.workflows) == 0 {
		return true
	}
	_, ok := c.workflows[workflowID]
	return ok
}

// WebSocketHub 管理用户的 WebSocket 连接，按工作流订阅推送状态变更
type WebSocketHub struct {
	mu                sync.RWMutex
	clients           map[string]map[*websocket.Conn]*clientConn // userID -> conns
	offline           OfflineStore
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*WebSocketHub)

// WithOfflineStore 指定离线存储
func WithOfflineStore(store OfflineStore) HubOption {
	return func(h *WebSocketHub) { h.offline = store }
}

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *WebSocketHub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *WebSocketHub) { h.logger = l }
}

// NewWebSocketHub 创建 Hub
func NewWebSocketHub(opts ...HubOption) *WebSocketHub {
	hub := &WebSocketHub{
		clients:           make(map[string]map[*websocket.Conn]*clientConn),
		offline:           NewMemoryOfflineStore(50),
		keepAliveInterval: 30 * time.Second,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册连接
// workflowIDs 为订阅的工作流集合，为空表示接收全部推送
func (h *WebSocketHub) Register(userID string, conn *websocket.Conn, workflowIDs []string) {
	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*websocket.Conn]*clientConn)
	}
	client := &clientConn{
		conn:      conn,
		workflows: sliceToSet(workflowIDs),
	}
	h.clients[userID][conn] = client
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.Inc()
	h.replayOffline(context.Background(), userID, client)
	h.startKeepAlive(userID, client)
}

// Unregister 移除连接
func (h *WebSocketHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			metrics.WebSocketConnectionsGauge.Dec()
		}
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// SendToUser 将消息发送给指定用户的所有连接，离线时写入离线存储
func (h *WebSocketHub) SendToUser(userID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// 锁内拍快照再发送：写入期间其他连接可能并发注销，不能遍历活动 map
	h.mu.RLock()
	targets := make([]*clientConn, 0, len(h.clients[userID]))
	for _, client := range h.clients[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return h.storeOffline(context.Background(), userID, data)
	}

	var firstErr error
	for _, client := range targets {
		client.mu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			h.Unregister(userID, client.conn)
			_ = client.conn.Close()
			_ = h.storeOffline(context.Background(), userID, data)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// BroadcastWorkflow 向所有订阅了该工作流的在线连接推送消息
func (h *WebSocketHub) BroadcastWorkflow(workflowID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("序列化推送消息失败", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, conns := range h.clients {
		for conn, client := range conns {
			if !client.subscribed(workflowID) {
				continue
			}
			client.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("推送工作流状态失败",
					zap.String("user_id", userID),
					zap.String("workflow_id", workflowID),
					zap.Error(err),
				)
			}
			client.mu.Unlock()
		}
	}
}

// ConnectedCount 返回指定用户的连接数（用于调试/指标）
func (h *WebSocketHub) ConnectedCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *WebSocketHub) replayOffline(ctx context.Context, userID string, client *clientConn) {
	if h.offline == nil {
		return
	}
	messages, err := h.offline.Drain(ctx, userID)
	if err != nil {
		h.logger.Warn("离线消息重放失败", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, msg := range messages {
		client.mu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("推送离线消息失败", zap.Error(err))
		}
		client.mu.Unlock()
	}
}

func (h *WebSocketHub) storeOffline(ctx context.Context, userID string, payload []byte) error {
	if h.offline == nil {
		return nil
	}
	return h.offline.Append(ctx, userID, payload)
}

func (h *WebSocketHub) startKeepAlive(userID string, client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for range ticker.C {
			client.mu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			client.mu.Unlock()
			if err != nil {
				h.Unregister(userID, client.conn)
				_ = client.conn.Close()
				return
			}
		}
	}()
}

func sliceToSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
