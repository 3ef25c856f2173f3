package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"backend/internal/infra/queue"
	"backend/internal/metrics"
	"backend/internal/workflow"
	"backend/internal/workflow/state"

	"go.uber.org/zap"
)

// Controller 工作流生命周期控制器
// start/resume 只做状态校验与任务入队，真正的推进由 worker 调用 RunWorkflow 完成
type Controller struct {
	store    *workflow.Store
	queue    queue.Client
	machine  *Machine
	runState *state.Manager

	// 同一进程内禁止同一工作流并发推进
	mu      sync.Mutex
	running map[string]struct{}

	logger *zap.Logger
}

// ControllerOption 控制器配置选项
type ControllerOption func(*Controller)

// WithControllerRunState 注入 Redis 运行态镜像
func WithControllerRunState(rs *state.Manager) ControllerOption {
	return func(c *Controller) { c.runState = rs }
}

// WithControllerLogger 注入日志器
func WithControllerLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController 创建控制器
func NewController(store *workflow.Store, q queue.Client, machine *Machine, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:   store,
		queue:   q,
		machine: machine,
		running: make(map[string]struct{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 启动工作流
// 已存在检查点或状态非 created 均视为已启动；
// 入队前通过 created → running 的条件更新占位，保证重复调用只入队一次
func (c *Controller) Start(ctx context.Context, workflowID string) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status.IsTerminal() {
		metrics.WorkflowStartsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: 工作流已结束(%s)", workflow.ErrInvalidState, wf.Status)
	}

	has, err := c.store.HasCheckpoints(ctx, workflowID)
	if err != nil {
		return err
	}
	if has || wf.Status != workflow.StatusCreated {
		metrics.WorkflowStartsTotal.WithLabelValues("rejected").Inc()
		return workflow.ErrAlreadyStarted
	}

	// 原子占位 created → running：并发 Start（含跨进程）只有一个能通过
	if err := c.store.TransitionStatus(ctx, workflowID, workflow.StatusRunning, workflow.StatusCreated); err != nil {
		if errors.Is(err, workflow.ErrInvalidState) {
			metrics.WorkflowStartsTotal.WithLabelValues("rejected").Inc()
			return workflow.ErrAlreadyStarted
		}
		return err
	}

	if err := c.queue.EnqueueStartWorkflow(workflowID); err != nil {
		// 入队失败回退占位，允许重新启动
		if rerr := c.store.TransitionStatus(ctx, workflowID, workflow.StatusCreated, workflow.StatusRunning); rerr != nil {
			c.logger.Error("启动占位回退失败", zap.String("workflow_id", workflowID), zap.Error(rerr))
		}
		metrics.WorkflowStartsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("启动任务入队失败: %w", err)
	}

	metrics.WorkflowStartsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("工作流启动任务已入队", zap.String("workflow_id", workflowID))
	return nil
}

// Resume 恢复工作流，仅允许 Paused 与 WaitingApproval 状态
func (c *Controller) Resume(ctx context.Context, workflowID string) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status != workflow.StatusPaused && wf.Status != workflow.StatusWaitingApproval {
		return fmt.Errorf("%w: 只有暂停或待审批的工作流可以恢复，当前 %s", workflow.ErrInvalidState, wf.Status)
	}

	if err := c.queue.EnqueueResumeWorkflow(workflowID, "manual"); err != nil {
		return fmt.Errorf("恢复任务入队失败: %w", err)
	}

	c.logger.Info("工作流恢复任务已入队", zap.String("workflow_id", workflowID))
	return nil
}

// Pause 请求暂停，仅允许 Running 状态
// 协作式暂停：状态机在下一个阶段边界检测到后停止推进
func (c *Controller) Pause(ctx context.Context, workflowID string) error {
	err := c.store.TransitionStatus(ctx, workflowID, workflow.StatusPaused, workflow.StatusRunning)
	if err != nil {
		return err
	}
	c.logger.Info("工作流暂停请求已生效", zap.String("workflow_id", workflowID))
	return nil
}

// Cancel 取消工作流，任何非终态均可；此后为终态
func (c *Controller) Cancel(ctx context.Context, workflowID string) error {
	err := c.store.TransitionStatus(ctx, workflowID, workflow.StatusCancelled,
		workflow.StatusCreated, workflow.StatusRunning,
		workflow.StatusPaused, workflow.StatusWaitingApproval)
	if err != nil {
		return err
	}

	if c.runState != nil {
		if derr := c.runState.Delete(ctx, workflowID); derr != nil {
			c.logger.Warn("取消后清理运行态镜像失败", zap.String("workflow_id", workflowID), zap.Error(derr))
		}
	}

	c.logger.Info("工作流已取消", zap.String("workflow_id", workflowID))
	return nil
}

// RunWorkflow 在当前进程内推进工作流（由 worker 任务调用）
// 同一工作流同时只允许一次推进
func (c *Controller) RunWorkflow(ctx context.Context, workflowID string) error {
	c.mu.Lock()
	if _, busy := c.running[workflowID]; busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: 工作流正在执行中", workflow.ErrInvalidState)
	}
	c.running[workflowID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.running, workflowID)
		c.mu.Unlock()
	}()

	return c.machine.Run(ctx, workflowID)
}
