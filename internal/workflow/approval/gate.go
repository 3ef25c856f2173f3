package approval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"backend/internal/infra/queue"
	"backend/internal/metrics"
	"backend/internal/notification"
	"backend/internal/workflow"

	"go.uber.org/zap"
)

// SystemActor 自动审批的决策人标识
const SystemActor = "system"

// Gate 审批门控
// 决策是一次原子的 test-and-set：并发审批同一检查点时只有一个决策生效
type Gate struct {
	store    *workflow.Store
	queue    queue.Client
	notifier notification.Notifier
	bus      *EventBus
	rule     *AutoApprovalRule
	logger   *zap.Logger
}

// GateOption Gate 配置选项
type GateOption func(*Gate)

// WithQueue 注入任务队列（人工决策后触发恢复执行）
func WithQueue(q queue.Client) GateOption {
	return func(g *Gate) { g.queue = q }
}

// WithNotifier 注入通知器
func WithNotifier(n notification.Notifier) GateOption {
	return func(g *Gate) { g.notifier = n }
}

// WithEventBus 注入审批事件总线
func WithEventBus(b *EventBus) GateOption {
	return func(g *Gate) { g.bus = b }
}

// WithAutoApprovalRule 注入自动审批规则
func WithAutoApprovalRule(r *AutoApprovalRule) GateOption {
	return func(g *Gate) { g.rule = r }
}

// WithGateLogger 注入日志器
func WithGateLogger(l *zap.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// NewGate 创建审批门控
func NewGate(store *workflow.Store, opts ...GateOption) *Gate {
	g := &Gate{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide 人工审批决策
// 查找开放门控（无则 ErrNoOpenGate），原子关闭（竞争失败 ErrAlreadyDecided），
// 记录决策并触发恢复执行
func (g *Gate) Decide(ctx context.Context, workflowID string, decision workflow.DecisionType, actor, comments string) (*workflow.ApprovalDecision, error) {
	wf, err := g.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: 工作流已结束(%s)", workflow.ErrInvalidState, wf.Status)
	}

	cp, err := g.store.GetOpenGate(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	record, err := g.close(ctx, cp, decision, actor, comments, false)
	if err != nil {
		return nil, err
	}

	// 决策落库后异步恢复执行；入队失败不回滚决策，可人工重新 resume
	if g.queue != nil {
		if err := g.queue.EnqueueResumeWorkflow(workflowID, string(decision)); err != nil {
			g.logger.Error("决策后恢复任务入队失败",
				zap.String("workflow_id", workflowID),
				zap.Error(err),
			)
		}
	}

	g.notify(ctx, wf, cp, record)
	return record, nil
}

// TryAutoApprove 尝试自动审批
// 规则通过时以 system 身份关闭门控并返回 true；状态机在同一次运行中直接继续执行
func (g *Gate) TryAutoApprove(ctx context.Context, cp *workflow.Checkpoint) (bool, error) {
	pass, err := g.rule.Evaluate(cp.Snapshot.Review)
	if err != nil {
		// 规则有问题时退回人工审批，不阻断主流程
		g.logger.Warn("自动审批规则求值失败，转人工审批",
			zap.String("checkpoint_id", cp.ID),
			zap.Error(err),
		)
		return false, nil
	}
	if !pass {
		return false, nil
	}

	comments := fmt.Sprintf("自动审批通过（规则: %s）", g.rule.String())
	if _, err := g.close(ctx, cp, workflow.DecisionApproved, SystemActor, comments, true); err != nil {
		return false, err
	}

	g.logger.Info("检查点自动审批通过",
		zap.String("workflow_id", cp.WorkflowID),
		zap.String("checkpoint_id", cp.ID),
		zap.String("stage", string(cp.Stage)),
	)
	return true, nil
}

// AnnounceGate 宣告门控开放：发送待审批通知并发布事件
// 由状态机在挂起等待审批时调用
func (g *Gate) AnnounceGate(ctx context.Context, wf *workflow.Workflow, cp *workflow.Checkpoint) {
	if g.bus != nil {
		g.bus.Publish(Event{
			Type:         EventGateOpened,
			WorkflowID:   cp.WorkflowID,
			CheckpointID: cp.ID,
			Stage:        cp.Stage,
		})
	}

	if g.notifier == nil {
		return
	}
	n := &notification.Notification{
		Type:       "websocket",
		WorkflowID: wf.ID,
		Subject:    "课程内容待审批",
		Body:       fmt.Sprintf("课程「%s」的 %s 阶段产出已就绪，等待审批", wf.Title, cp.Stage),
		Data: map[string]any{
			"checkpoint_id": cp.ID,
			"stage":         cp.Stage,
			"review":        cp.Snapshot.Review,
		},
	}
	if err := g.notifier.Send(ctx, n); err != nil {
		metrics.ApprovalNotificationsTotal.WithLabelValues(n.Type, "error").Inc()
		g.logger.Warn("待审批通知发送失败",
			zap.String("workflow_id", wf.ID),
			zap.Error(err),
		)
		return
	}
	metrics.ApprovalNotificationsTotal.WithLabelValues(n.Type, "ok").Inc()
}

// Pending 查询全部待审批检查点
func (g *Gate) Pending(ctx context.Context) ([]workflow.Checkpoint, error) {
	return g.store.PendingGates(ctx)
}

// History 查询工作流审批历史
func (g *Gate) History(ctx context.Context, workflowID string) ([]workflow.ApprovalDecision, error) {
	return g.store.ListDecisions(ctx, workflowID)
}

// close 关闭门控并记录决策（人工与自动审批的公共路径）
func (g *Gate) close(ctx context.Context, cp *workflow.Checkpoint, decision workflow.DecisionType, actor, comments string, auto bool) (*workflow.ApprovalDecision, error) {
	approved := decision == workflow.DecisionApproved

	if err := g.store.CloseGate(ctx, cp.ID, approved); err != nil {
		return nil, err
	}

	record := &workflow.ApprovalDecision{
		CheckpointID: cp.ID,
		WorkflowID:   cp.WorkflowID,
		Decision:     decision,
		Actor:        actor,
		Comments:     comments,
		AutoApproved: auto,
	}
	if cp.Snapshot.Review != nil {
		score := cp.Snapshot.Review.Score
		record.ReviewScore = &score
	}
	if err := g.store.CreateDecision(ctx, record); err != nil {
		// 门控已关闭但决策记录失败：审计缺失，保留错误让调用方感知
		return nil, err
	}

	metrics.ApprovalPendingGauge.Dec()
	metrics.ApprovalDecisionsTotal.WithLabelValues(string(decision), strconv.FormatBool(auto)).Inc()

	if g.bus != nil {
		g.bus.Publish(Event{
			Type:         EventGateDecided,
			WorkflowID:   cp.WorkflowID,
			CheckpointID: cp.ID,
			Stage:        cp.Stage,
			Decision:     decision,
			Actor:        actor,
			AutoApproved: auto,
			Timestamp:    time.Now().UTC(),
		})
	}

	g.logger.Info("审批门控已关闭",
		zap.String("workflow_id", cp.WorkflowID),
		zap.String("checkpoint_id", cp.ID),
		zap.String("decision", string(decision)),
		zap.String("actor", actor),
		zap.Bool("auto", auto),
	)
	return record, nil
}

// notify 决策结果通知（尽力而为）
func (g *Gate) notify(ctx context.Context, wf *workflow.Workflow, cp *workflow.Checkpoint, record *workflow.ApprovalDecision) {
	if g.notifier == nil {
		return
	}
	verdict := "已通过"
	if record.Decision == workflow.DecisionRejected {
		verdict = "已驳回"
	}
	n := &notification.Notification{
		Type:       "websocket",
		WorkflowID: wf.ID,
		Subject:    "审批结果",
		Body:       fmt.Sprintf("课程「%s」的 %s 阶段审批%s", wf.Title, cp.Stage, verdict),
		Data: map[string]any{
			"checkpoint_id": cp.ID,
			"decision":      record.Decision,
			"actor":         record.Actor,
			"comments":      record.Comments,
		},
	}
	if err := g.notifier.Send(ctx, n); err != nil {
		metrics.ApprovalNotificationsTotal.WithLabelValues(n.Type, "error").Inc()
		g.logger.Warn("审批结果通知发送失败", zap.String("workflow_id", wf.ID), zap.Error(err))
		return
	}
	metrics.ApprovalNotificationsTotal.WithLabelValues(n.Type, "ok").Inc()
}
