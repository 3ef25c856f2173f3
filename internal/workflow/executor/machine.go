package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/workflow"
	"backend/internal/workflow/approval"
	"backend/internal/workflow/state"

	"go.uber.org/zap"
)

// Machine 课程工作流状态机
//
// 状态推进路径：
//
//	outline → review_outline → content_generation → review_content
//	        → final_assembly → export → done
//
// review_* 节点是持久化挂起点：挂起时内存中不保留任何运行态，
// 恢复完全由落库的工作流、检查点与产物驱动。
// 任一阶段失败进入 failed，不做自动重试。
type Machine struct {
	store        *workflow.Store
	gate         *approval.Gate
	executors    map[workflow.Stage]workflow.StageExecutor
	reviewer     workflow.Reviewer
	broadcaster  workflow.StatusBroadcaster
	runState     *state.Manager
	stageTimeout time.Duration
	logger       *zap.Logger
}

// MachineOption 状态机配置选项
type MachineOption func(*Machine)

// WithReviewer 注入评审 Agent
func WithReviewer(r workflow.Reviewer) MachineOption {
	return func(m *Machine) { m.reviewer = r }
}

// WithBroadcaster 注入状态广播器
func WithBroadcaster(b workflow.StatusBroadcaster) MachineOption {
	return func(m *Machine) { m.broadcaster = b }
}

// WithRunStateManager 注入 Redis 运行态镜像
func WithRunStateManager(rs *state.Manager) MachineOption {
	return func(m *Machine) { m.runState = rs }
}

// WithStageTimeout 设置单阶段执行超时
func WithStageTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.stageTimeout = d
		}
	}
}

// WithMachineLogger 注入日志器
func WithMachineLogger(l *zap.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// NewMachine 创建状态机
func NewMachine(store *workflow.Store, gate *approval.Gate, executors []workflow.StageExecutor, opts ...MachineOption) *Machine {
	m := &Machine{
		store:        store,
		gate:         gate,
		executors:    make(map[workflow.Stage]workflow.StageExecutor, len(executors)),
		stageTimeout: 10 * time.Minute,
		logger:       zap.NewNop(),
	}
	for _, ex := range executors {
		m.executors[ex.Stage()] = ex
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run 从当前持久化状态驱动工作流，直到挂起、暂停或终态
// 挂起（等待审批/暂停）返回 nil；阶段失败返回 *workflow.StageExecutionError
func (m *Machine) Run(ctx context.Context, workflowID string) error {
	ctx = logger.WithWorkflowID(ctx, workflowID)

	for {
		// 每个阶段边界重新加载：暂停/取消是协作式的，在这里生效
		wf, err := m.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}

		switch wf.Status {
		case workflow.StatusPaused:
			m.logger.Info("工作流已暂停，停止推进", zap.String("workflow_id", workflowID))
			return nil
		case workflow.StatusCancelled:
			m.logger.Info("工作流已取消，停止推进", zap.String("workflow_id", workflowID))
			m.clearRunState(ctx, workflowID)
			return nil
		case workflow.StatusCompleted, workflow.StatusFailed:
			return fmt.Errorf("%w: 工作流已结束(%s)", workflow.ErrInvalidState, wf.Status)
		}

		suspended, err := m.step(ctx, wf)
		if err != nil {
			return err
		}
		if suspended {
			return nil
		}
	}
}

// step 执行一次状态机推进，返回是否挂起
func (m *Machine) step(ctx context.Context, wf *workflow.Workflow) (bool, error) {
	switch wf.CurrentState {
	case workflow.StateOutline:
		return m.runGatedStage(ctx, wf, workflow.StageOutline, workflow.StateReviewOutline)

	case workflow.StateReviewOutline:
		return m.resolveReview(ctx, wf, workflow.StageOutline,
			workflow.StateOutline, workflow.StateContentGeneration)

	case workflow.StateContentGeneration:
		return m.runGatedStage(ctx, wf, workflow.StageContentGeneration, workflow.StateReviewContent)

	case workflow.StateReviewContent:
		return m.resolveReview(ctx, wf, workflow.StageContentGeneration,
			workflow.StateContentGeneration, workflow.StateFinalAssembly)

	case workflow.StateFinalAssembly:
		return m.runPlainStage(ctx, wf, workflow.StageFinalAssembly, workflow.StateExport)

	case workflow.StateExport:
		return m.runPlainStage(ctx, wf, workflow.StageExport, workflow.StateDone)

	case workflow.StateDone:
		return true, m.complete(ctx, wf)

	case workflow.StateFailed:
		return true, nil

	default:
		return false, fmt.Errorf("%w: 未知状态 %s", workflow.ErrInvalidState, wf.CurrentState)
	}
}

// runGatedStage 执行需要审批的阶段：产出 → 评审 → 检查点 → 自动审批或挂起
func (m *Machine) runGatedStage(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage, reviewState workflow.State) (bool, error) {
	result, input, err := m.executeStage(ctx, wf, stage)
	if err != nil {
		return false, err
	}

	// 评审失败不阻断主流程，转人工审批
	var review *workflow.ReviewSummary
	if m.reviewer != nil {
		review, err = m.reviewer.Review(ctx, input, result.Artifacts)
		if err != nil {
			m.logger.Warn("内容评审失败，转人工审批",
				zap.String("workflow_id", wf.ID),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			review = nil
		}
	}

	snapshot, err := m.buildSnapshot(ctx, wf, reviewState)
	if err != nil {
		return false, err
	}
	snapshot.Review = review
	snapshot.RevisionFeedback = input.RevisionFeedback
	snapshot.Attempt = input.Attempt

	cp := &workflow.Checkpoint{
		WorkflowID:       wf.ID,
		Stage:            stage,
		Snapshot:         snapshot,
		RequiresApproval: true,
	}
	if err := m.store.RecordCheckpoint(ctx, cp); err != nil {
		return false, err
	}
	// 门控随检查点落库即开放；关闭路径（自动或人工）负责对应递减
	metrics.ApprovalPendingGauge.Inc()

	if err := m.setRunState(ctx, wf, workflow.StatusRunning, reviewState); err != nil {
		return false, err
	}

	// 自动审批通过则不挂起，循环将进入 review 节点并继续推进
	if m.gate != nil {
		approved, err := m.gate.TryAutoApprove(ctx, cp)
		if err != nil && !errors.Is(err, workflow.ErrAlreadyDecided) {
			return false, err
		}
		if approved {
			return false, nil
		}
	}

	if err := m.setRunState(ctx, wf, workflow.StatusWaitingApproval, reviewState); err != nil {
		return false, err
	}
	if m.gate != nil {
		m.gate.AnnounceGate(ctx, wf, cp)
	}

	m.logger.Info("工作流挂起等待审批",
		zap.String("workflow_id", wf.ID),
		zap.String("stage", string(stage)),
		zap.String("checkpoint_id", cp.ID),
	)
	return true, nil
}

// resolveReview 处理审批节点：门控开放则挂起，通过则前进，驳回则回到产出阶段重做
func (m *Machine) resolveReview(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage, backState, nextState workflow.State) (bool, error) {
	_, err := m.store.GetOpenGate(ctx, wf.ID)
	if err == nil {
		// 门控仍开放（未决策即被 resume）：保持等待
		if wf.Status != workflow.StatusWaitingApproval {
			if err := m.setRunState(ctx, wf, workflow.StatusWaitingApproval, wf.CurrentState); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	if !errors.Is(err, workflow.ErrNoOpenGate) {
		return false, err
	}

	cp, err := m.store.LatestStageCheckpoint(ctx, wf.ID, stage)
	if err != nil {
		return false, err
	}
	if cp == nil {
		// 没有检查点却处于审批态：回退到产出阶段重建
		return false, m.setRunState(ctx, wf, workflow.StatusRunning, backState)
	}

	if cp.Approved {
		if err := m.store.MarkArtifactsApproved(ctx, snapshotArtifactIDs(&cp.Snapshot)); err != nil {
			return false, err
		}
		m.logger.Info("审批通过，工作流前进",
			zap.String("workflow_id", wf.ID),
			zap.String("stage", string(stage)),
			zap.String("next_state", string(nextState)),
		)
		return false, m.setRunState(ctx, wf, workflow.StatusRunning, nextState)
	}

	m.logger.Info("审批驳回，重做产出阶段",
		zap.String("workflow_id", wf.ID),
		zap.String("stage", string(stage)),
	)
	return false, m.setRunState(ctx, wf, workflow.StatusRunning, backState)
}

// runPlainStage 执行无需审批的阶段
func (m *Machine) runPlainStage(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage, nextState workflow.State) (bool, error) {
	if _, _, err := m.executeStage(ctx, wf, stage); err != nil {
		return false, err
	}

	snapshot, err := m.buildSnapshot(ctx, wf, nextState)
	if err != nil {
		return false, err
	}
	cp := &workflow.Checkpoint{
		WorkflowID: wf.ID,
		Stage:      stage,
		Snapshot:   snapshot,
	}
	if err := m.store.RecordCheckpoint(ctx, cp); err != nil {
		return false, err
	}

	return false, m.setRunState(ctx, wf, workflow.StatusRunning, nextState)
}

// executeStage 构造输入并运行阶段执行器，产物落库
func (m *Machine) executeStage(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage) (*workflow.StageResult, *workflow.StageInput, error) {
	ex, ok := m.executors[stage]
	if !ok {
		err := workflow.NewStageExecutionError(wf.ID, stage, fmt.Errorf("阶段执行器未注册"))
		return nil, nil, m.fail(ctx, wf, err)
	}

	input, err := m.buildStageInput(ctx, wf, stage)
	if err != nil {
		return nil, nil, err
	}

	if wf.Status != workflow.StatusRunning {
		if err := m.setRunState(ctx, wf, workflow.StatusRunning, wf.CurrentState); err != nil {
			return nil, nil, err
		}
	}

	m.logger.Info("开始执行阶段",
		zap.String("workflow_id", wf.ID),
		zap.String("stage", string(stage)),
		zap.Int("attempt", input.Attempt),
	)

	stageCtx, cancel := context.WithTimeout(ctx, m.stageTimeout)
	defer cancel()

	start := time.Now()
	result, err := ex.Execute(stageCtx, input)
	metrics.StageExecutionDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageExecutionsTotal.WithLabelValues(string(stage), "failed").Inc()
		stageErr := workflow.NewStageExecutionError(wf.ID, stage, err)
		return nil, nil, m.fail(ctx, wf, stageErr)
	}
	metrics.StageExecutionsTotal.WithLabelValues(string(stage), "ok").Inc()

	// 产物落库：重做时挂接到同类型同序号的上一版本，形成版本链
	for _, a := range result.Artifacts {
		a.WorkflowID = wf.ID
		if prev, err := m.store.LatestArtifact(ctx, wf.ID, a.ContentType, a.ModuleIndex); err == nil {
			parentID := prev.ID
			a.ParentID = &parentID
		} else if !errors.Is(err, workflow.ErrArtifactNotFound) {
			return nil, nil, err
		}
		if err := m.store.SaveArtifact(ctx, a); err != nil {
			return nil, nil, err
		}
	}

	return result, input, nil
}

// buildStageInput 从持久化状态重建阶段输入
func (m *Machine) buildStageInput(ctx context.Context, wf *workflow.Workflow, stage workflow.Stage) (*workflow.StageInput, error) {
	in := &workflow.StageInput{
		Workflow: wf,
		Config:   wf.Config,
		Attempt:  1,
	}

	// 驳回重做：修改意见来自该阶段上一检查点的最终决策
	cp, err := m.store.LatestStageCheckpoint(ctx, wf.ID, stage)
	if err != nil {
		return nil, err
	}
	if cp != nil && cp.Decided && !cp.Approved {
		in.Attempt = cp.Snapshot.Attempt + 1
		decision, err := m.store.LatestDecision(ctx, cp.ID)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			in.RevisionFeedback = decision.Comments
		}
	}

	// 前序产物按阶段需要装配
	switch stage {
	case workflow.StageContentGeneration, workflow.StageFinalAssembly:
		outline, err := m.store.LatestArtifact(ctx, wf.ID, workflow.ContentTypeOutline, 0)
		if err != nil {
			return nil, err
		}
		in.Outline = outline
		if stage == workflow.StageFinalAssembly {
			modules, err := m.store.LatestModuleArtifacts(ctx, wf.ID)
			if err != nil {
				return nil, err
			}
			in.Modules = modules
		}
	case workflow.StageExport:
		course, err := m.store.LatestArtifact(ctx, wf.ID, workflow.ContentTypeCourseDocument, 0)
		if err != nil {
			return nil, err
		}
		in.Course = course
	}

	return in, nil
}

// buildSnapshot 汇总当前产物引用，构造检查点快照
func (m *Machine) buildSnapshot(ctx context.Context, wf *workflow.Workflow, nextState workflow.State) (workflow.Snapshot, error) {
	snapshot := workflow.NewSnapshot(wf.CurrentState)
	snapshot.NextState = nextState

	if a, err := m.store.LatestArtifact(ctx, wf.ID, workflow.ContentTypeOutline, 0); err == nil {
		snapshot.OutlineArtifactID = a.ID
	} else if !errors.Is(err, workflow.ErrArtifactNotFound) {
		return snapshot, err
	}

	modules, err := m.store.LatestModuleArtifacts(ctx, wf.ID)
	if err != nil {
		return snapshot, err
	}
	for _, a := range modules {
		snapshot.ModuleArtifactIDs = append(snapshot.ModuleArtifactIDs, a.ID)
	}

	if a, err := m.store.LatestArtifact(ctx, wf.ID, workflow.ContentTypeCourseDocument, 0); err == nil {
		snapshot.CourseArtifactID = a.ID
	} else if !errors.Is(err, workflow.ErrArtifactNotFound) {
		return snapshot, err
	}

	if a, err := m.store.LatestArtifact(ctx, wf.ID, workflow.ContentTypeExportManifest, 0); err == nil {
		snapshot.ExportArtifactID = a.ID
	} else if !errors.Is(err, workflow.ErrArtifactNotFound) {
		return snapshot, err
	}

	return snapshot, nil
}

// complete 工作流完成收尾
func (m *Machine) complete(ctx context.Context, wf *workflow.Workflow) error {
	if err := m.store.UpdateRunState(ctx, wf.ID, workflow.StatusCompleted, workflow.StateDone); err != nil {
		return err
	}
	m.clearRunState(ctx, wf.ID)
	m.broadcast(ctx, wf.ID)

	m.logger.Info("工作流执行完成", zap.String("workflow_id", wf.ID))
	return nil
}

// fail 记录阶段失败并终止工作流
func (m *Machine) fail(ctx context.Context, wf *workflow.Workflow, stageErr *workflow.StageExecutionError) error {
	m.logger.Error("阶段执行失败，工作流终止",
		zap.String("workflow_id", wf.ID),
		zap.String("stage", string(stageErr.Stage)),
		zap.Error(stageErr.Err),
	)

	if err := m.store.MarkFailed(ctx, wf.ID, stageErr); err != nil {
		m.logger.Error("标记工作流失败状态时出错", zap.Error(err))
	}
	m.mirrorRunState(ctx, wf.ID, workflow.StatusFailed, workflow.StateFailed, stageErr.Error())
	m.broadcast(ctx, wf.ID)
	return stageErr
}

// setRunState 更新数据库与 Redis 镜像中的执行进度并广播
func (m *Machine) setRunState(ctx context.Context, wf *workflow.Workflow, status workflow.Status, st workflow.State) error {
	if err := m.store.UpdateRunState(ctx, wf.ID, status, st); err != nil {
		return err
	}
	wf.Status = status
	wf.CurrentState = st
	m.mirrorRunState(ctx, wf.ID, status, st, "")
	m.broadcast(ctx, wf.ID)
	return nil
}

// mirrorRunState 写 Redis 运行态镜像（尽力而为）
func (m *Machine) mirrorRunState(ctx context.Context, workflowID string, status workflow.Status, st workflow.State, lastError string) {
	if m.runState == nil {
		return
	}
	err := m.runState.Save(ctx, &state.RunState{
		WorkflowID:   workflowID,
		Status:       status,
		CurrentState: st,
		LastError:    lastError,
	})
	if err != nil {
		m.logger.Warn("运行态镜像写入失败", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

// clearRunState 清理 Redis 运行态镜像
func (m *Machine) clearRunState(ctx context.Context, workflowID string) {
	if m.runState == nil {
		return
	}
	if err := m.runState.Delete(ctx, workflowID); err != nil {
		m.logger.Warn("运行态镜像清理失败", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

// broadcast 推送最新状态（尽力而为）
func (m *Machine) broadcast(ctx context.Context, workflowID string) {
	if m.broadcaster == nil {
		return
	}
	wf, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return
	}
	m.broadcaster.BroadcastStatus(ctx, wf)
}

// snapshotArtifactIDs 汇总快照引用的全部产物ID
func snapshotArtifactIDs(s *workflow.Snapshot) []string {
	var ids []string
	if s.OutlineArtifactID != "" {
		ids = append(ids, s.OutlineArtifactID)
	}
	ids = append(ids, s.ModuleArtifactIDs...)
	if s.CourseArtifactID != "" {
		ids = append(ids, s.CourseArtifactID)
	}
	return ids
}
