package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier 通知器接口
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
}

// Notification 通知消息
type Notification struct {
	Type       string         // webhook, websocket
	To         string         // 接收者（用户ID/URL），webhook 为空时使用默认 URL
	WorkflowID string         // 关联的工作流
	Subject    string         // 主题
	Body       string         // 内容
	Data       map[string]any // 附加数据
}

// MultiNotifier 多通道通知器
type MultiNotifier struct {
	webhook   *WebhookNotifier
	websocket *WebSocketNotifier
}

// NewMultiNotifier 创建多通道通知器
func NewMultiNotifier(webhookConfig *WebhookConfig, hub *WebSocketHub) *MultiNotifier {
	return &MultiNotifier{
		webhook:   NewWebhookNotifier(webhookConfig),
		websocket: NewWebSocketNotifier(hub),
	}
}

// Send 发送通知
func (m *MultiNotifier) Send(ctx context.Context, notification *Notification) error {
	var notifier Notifier

	switch notification.Type {
	case "webhook":
		notifier = m.webhook
	case "websocket":
		notifier = m.websocket
	default:
		return fmt.Errorf("不支持的通知类型: %s", notification.Type)
	}

	if notifier == nil {
		return fmt.Errorf("通知器未配置: %s", notification.Type)
	}

	return notifier.Send(ctx, notification)
}

// WebhookConfig Webhook 配置
type WebhookConfig struct {
	DefaultURL string
	Timeout    time.Duration
	Headers    map[string]string
}

// WebhookNotifier Webhook 通知器
type WebhookNotifier struct {
	config *WebhookConfig
	client *http.Client
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(config *WebhookConfig) *WebhookNotifier {
	if config == nil {
		config = &WebhookConfig{
			Timeout: 10 * time.Second,
		}
	}

	return &WebhookNotifier{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Send 发送 Webhook
func (w *WebhookNotifier) Send(ctx context.Context, notification *Notification) error {
	url := notification.To
	if url == "" {
		url = w.config.DefaultURL
	}

	if url == "" {
		return fmt.Errorf("Webhook URL 未配置")
	}

	payload := map[string]any{
		"type":        notification.Type,
		"workflow_id": notification.WorkflowID,
		"subject":     notification.Subject,
		"body":        notification.Body,
		"data":        notification.Data,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 Webhook 负载失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("创建 Webhook 请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CourseFlow-Notifier/1.0")

	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Webhook 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook 返回错误状态: %d", resp.StatusCode)
	}

	return nil
}

// WebSocketNotifier WebSocket 通知器
type WebSocketNotifier struct {
	hub *WebSocketHub
}

// NewWebSocketNotifier 创建 WebSocket 通知器
func NewWebSocketNotifier(hub *WebSocketHub) *WebSocketNotifier {
	if hub == nil {
		return nil
	}
	return &WebSocketNotifier{hub: hub}
}

// Send 发送 WebSocket 消息
// To 为空时按工作流订阅广播，否则定向推送给指定用户
func (ws *WebSocketNotifier) Send(ctx context.Context, notification *Notification) error {
	if ws == nil || ws.hub == nil {
		return fmt.Errorf("WebSocket hub 未配置")
	}
	payload := map[string]any{
		"type":        notification.Type,
		"workflow_id": notification.WorkflowID,
		"subject":     notification.Subject,
		"body":        notification.Body,
		"data":        notification.Data,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if notification.To == "" {
		ws.hub.BroadcastWorkflow(notification.WorkflowID, payload)
		return nil
	}
	return ws.hub.SendToUser(notification.To, payload)
}
