package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store 工作流持久化层
// 检查点与决策记录均为追加写入；唯一的原地更新是门控关闭的条件更新
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// StoreOption Store 配置选项
type StoreOption func(*Store)

// WithStoreLogger 注入日志器
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore 创建工作流存储
func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB 返回底层数据库句柄（供只读查询复用）
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ============================================================================
// 工作流实例
// ============================================================================

// CreateWorkflow 创建工作流实例
func (s *Store) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	if wf.Status == "" {
		wf.Status = StatusCreated
	}
	if wf.CurrentState == "" {
		wf.CurrentState = StateOutline
	}
	if err := s.db.WithContext(ctx).Create(wf).Error; err != nil {
		return NewStorageError("create_workflow", err)
	}
	return nil
}

// GetWorkflow 查询工作流实例
func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	err := s.db.WithContext(ctx).First(&wf, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, NewStorageError("get_workflow", err)
	}
	return &wf, nil
}

// ListWorkflows 分页查询工作流实例，按创建时间倒序
func (s *Store) ListWorkflows(ctx context.Context, offset, limit int) ([]Workflow, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Workflow{}).Count(&total).Error; err != nil {
		return nil, 0, NewStorageError("count_workflows", err)
	}

	var items []Workflow
	err := s.db.WithContext(ctx).
		Scopes(common.NewestFirst()).
		Offset(offset).Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, NewStorageError("list_workflows", err)
	}
	return items, total, nil
}

// TransitionStatus 条件状态迁移
// 仅当当前状态在 from 集合内时生效；并发竞争或状态不符返回 ErrInvalidState
func (s *Store) TransitionStatus(ctx context.Context, id string, to Status, from ...Status) error {
	res := s.db.WithContext(ctx).
		Model(&Workflow{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return NewStorageError("transition_status", res.Error)
	}
	if res.RowsAffected == 0 {
		// 区分"不存在"与"状态不符"
		if _, err := s.GetWorkflow(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: 期望状态 %v", ErrInvalidState, from)
	}
	return nil
}

// UpdateRunState 更新执行进度（状态机推进时调用，不做条件判断）
func (s *Store) UpdateRunState(ctx context.Context, id string, status Status, state State) error {
	updates := map[string]any{
		"status":        status,
		"current_state": state,
	}
	if status == StatusCompleted {
		now := time.Now().UTC()
		updates["completed_at"] = &now
	}
	err := s.db.WithContext(ctx).Model(&Workflow{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return NewStorageError("update_run_state", err)
	}
	return nil
}

// MarkFailed 标记工作流失败并记录错误信息
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	err := s.db.WithContext(ctx).Model(&Workflow{}).Where("id = ?", id).Updates(map[string]any{
		"status":        StatusFailed,
		"current_state": StateFailed,
		"last_error":    cause.Error(),
	}).Error
	if err != nil {
		return NewStorageError("mark_failed", err)
	}
	return nil
}

// ============================================================================
// 检查点
// ============================================================================

// RecordCheckpoint 记录检查点（追加写入）
func (s *Store) RecordCheckpoint(ctx context.Context, cp *Checkpoint) error {
	// 外键校验：工作流不存在视为存储错误
	var count int64
	if err := s.db.WithContext(ctx).Model(&Workflow{}).Where("id = ?", cp.WorkflowID).Count(&count).Error; err != nil {
		return NewStorageError("record_checkpoint", err)
	}
	if count == 0 {
		return NewStorageError("record_checkpoint", ErrWorkflowNotFound)
	}

	if cp.Snapshot.SchemaVersion == 0 {
		cp.Snapshot.SchemaVersion = SnapshotSchemaVersion
	}
	if err := s.db.WithContext(ctx).Create(cp).Error; err != nil {
		return NewStorageError("record_checkpoint", err)
	}

	s.logger.Debug("检查点已记录",
		zap.String("workflow_id", cp.WorkflowID),
		zap.String("checkpoint_id", cp.ID),
		zap.String("stage", string(cp.Stage)),
		zap.Bool("requires_approval", cp.RequiresApproval),
	)
	return nil
}

// GetOpenGate 查询当前开放的审批门控
// 开放门控 = requires_approval 且未决策；存在多个时取最新（异常情况下的兜底语义）
func (s *Store) GetOpenGate(ctx context.Context, workflowID string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND requires_approval = ? AND decided = ?", workflowID, true, false).
		Order("created_at DESC").
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenGate
	}
	if err != nil {
		return nil, NewStorageError("get_open_gate", err)
	}
	return &cp, nil
}

// GetCheckpoint 按ID查询检查点
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).First(&cp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewStorageError("get_checkpoint", gorm.ErrRecordNotFound)
	}
	if err != nil {
		return nil, NewStorageError("get_checkpoint", err)
	}
	return &cp, nil
}

// LatestCheckpoint 查询最新检查点
func (s *Store) LatestCheckpoint(ctx context.Context, workflowID string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).
		Scopes(common.ByWorkflow(workflowID), common.NewestFirst()).
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError("latest_checkpoint", err)
	}
	return &cp, nil
}

// ListCheckpoints 查询工作流全部检查点，按时间正序
func (s *Store) ListCheckpoints(ctx context.Context, workflowID string) ([]Checkpoint, error) {
	var items []Checkpoint
	err := s.db.WithContext(ctx).
		Scopes(common.ByWorkflow(workflowID)).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, NewStorageError("list_checkpoints", err)
	}
	return items, nil
}

// LatestStageCheckpoint 查询指定阶段的最新检查点，不存在返回 nil
func (s *Store) LatestStageCheckpoint(ctx context.Context, workflowID string, stage Stage) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).
		Scopes(common.ByWorkflow(workflowID), common.ByStage(string(stage)), common.NewestFirst()).
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError("latest_stage_checkpoint", err)
	}
	return &cp, nil
}

// HasCheckpoints 是否已存在检查点（用于启动幂等判断）
func (s *Store) HasCheckpoints(ctx context.Context, workflowID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Checkpoint{}).
		Where("workflow_id = ?", workflowID).
		Count(&count).Error
	if err != nil {
		return false, NewStorageError("has_checkpoints", err)
	}
	return count > 0, nil
}

// CloseGate 关闭审批门控（原子 test-and-set）
// 单条条件 UPDATE，并发竞争中只有一个调用方生效，其余返回 ErrAlreadyDecided
func (s *Store) CloseGate(ctx context.Context, checkpointID string, approved bool) error {
	res := s.db.WithContext(ctx).
		Model(&Checkpoint{}).
		Where("id = ? AND requires_approval = ? AND decided = ?", checkpointID, true, false).
		Updates(map[string]any{
			"decided":  true,
			"approved": approved,
		})
	if res.Error != nil {
		return NewStorageError("close_gate", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// PendingGates 查询所有开放门控（跨工作流，审批待办列表）
func (s *Store) PendingGates(ctx context.Context) ([]Checkpoint, error) {
	var items []Checkpoint
	err := s.db.WithContext(ctx).
		Where("requires_approval = ? AND decided = ?", true, false).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, NewStorageError("pending_gates", err)
	}
	return items, nil
}

// ============================================================================
// 审批决策
// ============================================================================

// CreateDecision 记录审批决策
func (s *Store) CreateDecision(ctx context.Context, d *ApprovalDecision) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return NewStorageError("create_decision", err)
	}
	return nil
}

// ListDecisions 查询工作流审批历史，按时间倒序
func (s *Store) ListDecisions(ctx context.Context, workflowID string) ([]ApprovalDecision, error) {
	var items []ApprovalDecision
	err := s.db.WithContext(ctx).
		Scopes(common.ByWorkflow(workflowID), common.NewestFirst()).
		Find(&items).Error
	if err != nil {
		return nil, NewStorageError("list_decisions", err)
	}
	return items, nil
}

// LatestDecision 查询检查点的最终决策
func (s *Store) LatestDecision(ctx context.Context, checkpointID string) (*ApprovalDecision, error) {
	var d ApprovalDecision
	err := s.db.WithContext(ctx).
		Where("checkpoint_id = ?", checkpointID).
		Order("created_at DESC").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError("latest_decision", err)
	}
	return &d, nil
}

// ============================================================================
// 内容产物
// ============================================================================

// SaveArtifact 保存内容产物
// ParentID 为空时版本号为1；否则校验父版本并分配 parent.Version+1
func (s *Store) SaveArtifact(ctx context.Context, a *ContentArtifact) error {
	if a.ParentID != nil {
		parent, err := s.GetArtifact(ctx, *a.ParentID)
		if err != nil {
			return err
		}
		if parent.WorkflowID != a.WorkflowID || parent.ContentType != a.ContentType {
			return NewStorageError("save_artifact",
				fmt.Errorf("父版本 %s 与新版本的工作流或内容类型不一致", parent.ID))
		}
		a.Version = parent.Version + 1
	} else if a.Version == 0 {
		a.Version = 1
	}

	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return NewStorageError("save_artifact", err)
	}

	s.logger.Debug("内容产物已保存",
		zap.String("workflow_id", a.WorkflowID),
		zap.String("artifact_id", a.ID),
		zap.String("content_type", string(a.ContentType)),
		zap.Int("version", a.Version),
	)
	return nil
}

// GetArtifact 按ID查询内容产物
func (s *Store) GetArtifact(ctx context.Context, id string) (*ContentArtifact, error) {
	var a ContentArtifact
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, NewStorageError("get_artifact", err)
	}
	return &a, nil
}

// GetArtifacts 批量查询内容产物
func (s *Store) GetArtifacts(ctx context.Context, ids []string) ([]*ContentArtifact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*ContentArtifact
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	if err != nil {
		return nil, NewStorageError("get_artifacts", err)
	}
	if len(items) != len(ids) {
		return nil, ErrArtifactNotFound
	}
	// 恢复调用方给定的顺序
	byID := make(map[string]*ContentArtifact, len(items))
	for _, a := range items {
		byID[a.ID] = a
	}
	ordered := make([]*ContentArtifact, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

// ListArtifacts 查询工作流全部内容产物，按时间正序
func (s *Store) ListArtifacts(ctx context.Context, workflowID string) ([]ContentArtifact, error) {
	var items []ContentArtifact
	err := s.db.WithContext(ctx).
		Scopes(common.ByWorkflow(workflowID)).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, NewStorageError("list_artifacts", err)
	}
	return items, nil
}

// LatestArtifact 查询指定类型（及模块序号）的最新版本产物
func (s *Store) LatestArtifact(ctx context.Context, workflowID string, contentType ContentType, moduleIndex int) (*ContentArtifact, error) {
	var a ContentArtifact
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND content_type = ? AND module_index = ?", workflowID, contentType, moduleIndex).
		Order("version DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, NewStorageError("latest_artifact", err)
	}
	return &a, nil
}

// LatestModuleArtifacts 查询每个模块序号的最新版本模块内容，按序号排序
func (s *Store) LatestModuleArtifacts(ctx context.Context, workflowID string) ([]*ContentArtifact, error) {
	var items []*ContentArtifact
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND content_type = ?", workflowID, ContentTypeModuleContent).
		Order("module_index ASC, version ASC").
		Find(&items).Error
	if err != nil {
		return nil, NewStorageError("latest_module_artifacts", err)
	}

	latest := make(map[int]*ContentArtifact)
	var order []int
	for _, a := range items {
		if _, ok := latest[a.ModuleIndex]; !ok {
			order = append(order, a.ModuleIndex)
		}
		latest[a.ModuleIndex] = a
	}
	result := make([]*ContentArtifact, 0, len(order))
	for _, idx := range order {
		result = append(result, latest[idx])
	}
	return result, nil
}

// MarkArtifactsApproved 审批通过后标记产物
func (s *Store) MarkArtifactsApproved(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&ContentArtifact{}).
		Where("id IN ?", ids).
		Update("is_approved", true).Error
	if err != nil {
		return NewStorageError("mark_artifacts_approved", err)
	}
	return nil
}

// ArtifactChain 沿 ParentID 回溯产物版本链，返回从首版到当前版的有序列表
func (s *Store) ArtifactChain(ctx context.Context, id string) ([]*ContentArtifact, error) {
	var chain []*ContentArtifact
	cur, err := s.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	for {
		chain = append([]*ContentArtifact{cur}, chain...)
		if cur.ParentID == nil {
			break
		}
		cur, err = s.GetArtifact(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
	}
	return chain, nil
}
