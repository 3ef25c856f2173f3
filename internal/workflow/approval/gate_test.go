package approval_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"backend/internal/workflow"
	"backend/internal/workflow/approval"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// fakeQueue 捕获入队调用的假队列
type fakeQueue struct {
	resumed []string
	reasons []string
	retErr  error
}

func (q *fakeQueue) EnqueueStartWorkflow(workflowID string) error { return q.retErr }

func (q *fakeQueue) EnqueueResumeWorkflow(workflowID, reason string) error {
	q.resumed = append(q.resumed, workflowID)
	q.reasons = append(q.reasons, reason)
	return q.retErr
}

func (q *fakeQueue) Close() error { return nil }

func setupGateTestStore(t *testing.T) *workflow.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	if err := db.AutoMigrate(
		&workflow.Workflow{},
		&workflow.Checkpoint{},
		&workflow.ApprovalDecision{},
		&workflow.ContentArtifact{},
	); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return workflow.NewStore(db, workflow.WithStoreLogger(zaptest.NewLogger(t)))
}

func seedGatedWorkflow(t *testing.T, store *workflow.Store, review *workflow.ReviewSummary) (*workflow.Workflow, *workflow.Checkpoint) {
	t.Helper()
	ctx := context.Background()

	wf := &workflow.Workflow{Title: "分布式系统导论", Topic: "共识算法", CreatedBy: "alice"}
	if err := store.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("创建工作流失败: %v", err)
	}
	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusWaitingApproval, workflow.StateReviewOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}

	snapshot := workflow.NewSnapshot(workflow.StateReviewOutline)
	snapshot.Review = review
	cp := &workflow.Checkpoint{
		WorkflowID:       wf.ID,
		Stage:            workflow.StageOutline,
		Snapshot:         snapshot,
		RequiresApproval: true,
	}
	if err := store.RecordCheckpoint(ctx, cp); err != nil {
		t.Fatalf("写入检查点失败: %v", err)
	}
	return wf, cp
}

func TestDecideApprove(t *testing.T) {
	store := setupGateTestStore(t)
	queue := &fakeQueue{}
	gate := approval.NewGate(store,
		approval.WithQueue(queue),
		approval.WithGateLogger(zaptest.NewLogger(t)),
	)

	review := &workflow.ReviewSummary{Score: 9.1, Recommendation: "approve"}
	wf, cp := seedGatedWorkflow(t, store, review)

	record, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionApproved, "bob", "结构清晰")
	if err != nil {
		t.Fatalf("审批决策失败: %v", err)
	}

	if record.Decision != workflow.DecisionApproved || record.Actor != "bob" {
		t.Errorf("决策记录不符: %+v", record)
	}
	if record.AutoApproved {
		t.Error("人工决策不应标记自动审批")
	}
	if record.ReviewScore == nil || *record.ReviewScore != 9.1 {
		t.Errorf("决策应携带评审得分，实际 %v", record.ReviewScore)
	}

	got, err := store.GetCheckpoint(context.Background(), cp.ID)
	if err != nil {
		t.Fatalf("查询检查点失败: %v", err)
	}
	if !got.Decided || !got.Approved {
		t.Errorf("门控应已关闭且通过: decided=%v approved=%v", got.Decided, got.Approved)
	}

	if len(queue.resumed) != 1 || queue.resumed[0] != wf.ID {
		t.Errorf("决策后应入队恢复任务: %v", queue.resumed)
	}
	if queue.reasons[0] != string(workflow.DecisionApproved) {
		t.Errorf("恢复原因应为决策类型，实际 %s", queue.reasons[0])
	}
}

func TestDecideRejectRecordsComments(t *testing.T) {
	store := setupGateTestStore(t)
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))
	wf, _ := seedGatedWorkflow(t, store, nil)

	record, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionRejected, "bob", "案例太少，补充两个实战案例")
	if err != nil {
		t.Fatalf("驳回决策失败: %v", err)
	}
	if record.Decision != workflow.DecisionRejected {
		t.Errorf("期望驳回决策，实际 %s", record.Decision)
	}
	if record.ReviewScore != nil {
		t.Error("无评审结论时不应携带得分")
	}

	history, err := gate.History(context.Background(), wf.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("审批历史查询异常: (%d, %v)", len(history), err)
	}
	if history[0].Comments != "案例太少，补充两个实战案例" {
		t.Errorf("修改意见未落库: %s", history[0].Comments)
	}
}

func TestDecideNoOpenGate(t *testing.T) {
	store := setupGateTestStore(t)
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))

	wf := &workflow.Workflow{Title: "无门控", Topic: "测试", CreatedBy: "alice"}
	if err := store.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("创建工作流失败: %v", err)
	}

	_, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionApproved, "bob", "")
	if !errors.Is(err, workflow.ErrNoOpenGate) {
		t.Errorf("期望 ErrNoOpenGate，实际 %v", err)
	}
}

func TestDecideTwiceReturnsAlreadyDecided(t *testing.T) {
	store := setupGateTestStore(t)
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))
	wf, cp := seedGatedWorkflow(t, store, nil)

	if _, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionApproved, "bob", ""); err != nil {
		t.Fatalf("首次决策失败: %v", err)
	}

	// 门控已关闭，再次决策找不到开放门控
	_, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionRejected, "carol", "想驳回")
	if !errors.Is(err, workflow.ErrNoOpenGate) {
		t.Errorf("期望 ErrNoOpenGate，实际 %v", err)
	}

	// 直接对同一检查点并发关闭时，晚到的一方收到 ErrAlreadyDecided
	if err := store.CloseGate(context.Background(), cp.ID, false); !errors.Is(err, workflow.ErrAlreadyDecided) {
		t.Errorf("期望 ErrAlreadyDecided，实际 %v", err)
	}
}

func TestDecideTerminalWorkflow(t *testing.T) {
	store := setupGateTestStore(t)
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))
	wf, _ := seedGatedWorkflow(t, store, nil)

	if err := store.UpdateRunState(context.Background(), wf.ID, workflow.StatusCancelled, workflow.StateOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}

	_, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionApproved, "bob", "")
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("终态工作流应拒绝决策，实际 %v", err)
	}
}

func TestTryAutoApprove(t *testing.T) {
	store := setupGateTestStore(t)
	rule, err := approval.NewAutoApprovalRule("score >= 8.5 && recommendation == 'approve'")
	if err != nil {
		t.Fatalf("解析规则失败: %v", err)
	}
	gate := approval.NewGate(store,
		approval.WithAutoApprovalRule(rule),
		approval.WithGateLogger(zaptest.NewLogger(t)),
	)

	t.Run("规则通过时关闭门控", func(t *testing.T) {
		wf, cp := seedGatedWorkflow(t, store, &workflow.ReviewSummary{Score: 9.2, Recommendation: "approve"})

		approved, err := gate.TryAutoApprove(context.Background(), cp)
		if err != nil {
			t.Fatalf("自动审批失败: %v", err)
		}
		if !approved {
			t.Fatal("期望自动审批通过")
		}

		history, err := gate.History(context.Background(), wf.ID)
		if err != nil || len(history) != 1 {
			t.Fatalf("审批历史查询异常: (%d, %v)", len(history), err)
		}
		if history[0].Actor != approval.SystemActor || !history[0].AutoApproved {
			t.Errorf("自动审批记录异常: %+v", history[0])
		}
	})

	t.Run("得分不足时转人工", func(t *testing.T) {
		_, cp := seedGatedWorkflow(t, store, &workflow.ReviewSummary{Score: 6.0, Recommendation: "approve"})

		approved, err := gate.TryAutoApprove(context.Background(), cp)
		if err != nil || approved {
			t.Errorf("期望 (false, nil)，实际 (%v, %v)", approved, err)
		}
	})

	t.Run("无评审结论时转人工", func(t *testing.T) {
		_, cp := seedGatedWorkflow(t, store, nil)

		approved, err := gate.TryAutoApprove(context.Background(), cp)
		if err != nil || approved {
			t.Errorf("期望 (false, nil)，实际 (%v, %v)", approved, err)
		}
	})
}

func TestTryAutoApproveWithoutRule(t *testing.T) {
	store := setupGateTestStore(t)
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))
	_, cp := seedGatedWorkflow(t, store, &workflow.ReviewSummary{Score: 10, Recommendation: "approve"})

	approved, err := gate.TryAutoApprove(context.Background(), cp)
	if err != nil || approved {
		t.Errorf("未配置规则时期望 (false, nil)，实际 (%v, %v)", approved, err)
	}
}

func TestTryAutoApproveBadExpressionFallsBack(t *testing.T) {
	store := setupGateTestStore(t)
	// 表达式引用不存在的变量，求值出错时应转人工而非报错
	rule, err := approval.NewAutoApprovalRule("unknown_metric > 5")
	if err != nil {
		t.Fatalf("解析规则失败: %v", err)
	}
	gate := approval.NewGate(store,
		approval.WithAutoApprovalRule(rule),
		approval.WithGateLogger(zaptest.NewLogger(t)),
	)
	_, cp := seedGatedWorkflow(t, store, &workflow.ReviewSummary{Score: 9.9, Recommendation: "approve"})

	approved, err := gate.TryAutoApprove(context.Background(), cp)
	if err != nil || approved {
		t.Errorf("求值失败时期望 (false, nil)，实际 (%v, %v)", approved, err)
	}
}

func TestDecidePublishesGateEvent(t *testing.T) {
	store := setupGateTestStore(t)
	bus := approval.NewEventBus()
	gate := approval.NewGate(store,
		approval.WithEventBus(bus),
		approval.WithGateLogger(zaptest.NewLogger(t)),
	)
	wf, cp := seedGatedWorkflow(t, store, nil)

	events, cancel := bus.Subscribe(wf.ID)
	defer cancel()

	if _, err := gate.Decide(context.Background(), wf.ID, workflow.DecisionApproved, "bob", ""); err != nil {
		t.Fatalf("决策失败: %v", err)
	}

	// 发布在决策路径内同步完成
	select {
	case evt := <-events:
		if evt.Type != approval.EventGateDecided || evt.CheckpointID != cp.ID {
			t.Errorf("决策事件内容异常: %+v", evt)
		}
		if evt.Decision != workflow.DecisionApproved || evt.Actor != "bob" {
			t.Errorf("决策事件应携带决策与决策人: %+v", evt)
		}
	default:
		t.Fatal("决策后应发布 gate_decided 事件")
	}
}

func TestPendingGates(t *testing.T) {
	store := setupGateTestStore(t)
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))

	wf1, _ := seedGatedWorkflow(t, store, nil)
	wf2, _ := seedGatedWorkflow(t, store, nil)

	pending, err := gate.Pending(context.Background())
	if err != nil {
		t.Fatalf("查询待审批失败: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("期望2个待审批门控，实际 %d", len(pending))
	}

	if _, err := gate.Decide(context.Background(), wf1.ID, workflow.DecisionApproved, "bob", ""); err != nil {
		t.Fatalf("决策失败: %v", err)
	}

	pending, err = gate.Pending(context.Background())
	if err != nil {
		t.Fatalf("查询待审批失败: %v", err)
	}
	if len(pending) != 1 || pending[0].WorkflowID != wf2.ID {
		t.Errorf("决策后待审批列表异常: %+v", pending)
	}
}
