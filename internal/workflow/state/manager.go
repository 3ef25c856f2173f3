package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/workflow"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "course:workflow:state:%s"
	defaultTTL = 24 * time.Hour
)

// RunState 工作流运行态镜像
// 落库仍是唯一事实来源，这里只为状态查询接口省去数据库往返
type RunState struct {
	WorkflowID   string          `json:"workflow_id"`
	Status       workflow.Status `json:"status"`
	CurrentState workflow.State  `json:"current_state"`
	LastError    string          `json:"last_error,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Manager 运行态缓存管理器
type Manager struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewManager 创建管理器
func NewManager(rdb redis.UniversalClient) *Manager {
	return &Manager{rdb: rdb, ttl: defaultTTL}
}

// Save 写入运行态
func (m *Manager) Save(ctx context.Context, st *RunState) error {
	if m == nil || m.rdb == nil {
		return nil
	}
	st.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化运行态失败: %w", err)
	}
	key := fmt.Sprintf(keyPrefix, st.WorkflowID)
	if err := m.rdb.Set(ctx, key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("写入运行态失败: %w", err)
	}
	return nil
}

// Get 读取运行态，缓存未命中返回 nil
func (m *Manager) Get(ctx context.Context, workflowID string) (*RunState, error) {
	if m == nil || m.rdb == nil {
		return nil, nil
	}
	key := fmt.Sprintf(keyPrefix, workflowID)
	data, err := m.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取运行态失败: %w", err)
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("解析运行态失败: %w", err)
	}
	return &st, nil
}

// Delete 删除运行态（工作流进入终态后清理）
func (m *Manager) Delete(ctx context.Context, workflowID string) error {
	if m == nil || m.rdb == nil {
		return nil
	}
	key := fmt.Sprintf(keyPrefix, workflowID)
	if err := m.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("删除运行态失败: %w", err)
	}
	return nil
}
