package notification

import (
	"context"
	"time"

	"backend/internal/workflow"
)

// StatusBroadcaster 将工作流状态变更推送到 WebSocket 订阅者
// 实现 workflow.StatusBroadcaster，由状态机注入使用
type StatusBroadcaster struct {
	hub *WebSocketHub
}

// NewStatusBroadcaster 创建状态广播器
func NewStatusBroadcaster(hub *WebSocketHub) *StatusBroadcaster {
	return &StatusBroadcaster{hub: hub}
}

// BroadcastStatus 推送状态变更
func (b *StatusBroadcaster) BroadcastStatus(ctx context.Context, wf *workflow.Workflow) {
	if b == nil || b.hub == nil || wf == nil {
		return
	}
	b.hub.BroadcastWorkflow(wf.ID, map[string]any{
		"type":          "workflow_status",
		"workflow_id":   wf.ID,
		"status":        wf.Status,
		"current_state": wf.CurrentState,
		"last_error":    wf.LastError,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
