package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"backend/internal/workflow"
	"backend/internal/workflow/approval"
	"backend/internal/workflow/executor"

	"go.uber.org/zap/zaptest"
)

// fakeQueue 捕获入队调用的假队列
type fakeQueue struct {
	mu      sync.Mutex
	started []string
	resumed []string
	reasons []string
	retErr  error
}

func (q *fakeQueue) EnqueueStartWorkflow(workflowID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retErr != nil {
		return q.retErr
	}
	q.started = append(q.started, workflowID)
	return nil
}

func (q *fakeQueue) EnqueueResumeWorkflow(workflowID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retErr != nil {
		return q.retErr
	}
	q.resumed = append(q.resumed, workflowID)
	q.reasons = append(q.reasons, reason)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func newTestController(t *testing.T) (*executor.Controller, *workflow.Store, *fakeQueue) {
	t.Helper()
	store := setupMachineTestStore(t)
	queue := &fakeQueue{}
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))
	machine := executor.NewMachine(store, gate, defaultExecutors(),
		executor.WithMachineLogger(zaptest.NewLogger(t)),
	)
	controller := executor.NewController(store, queue, machine,
		executor.WithControllerLogger(zaptest.NewLogger(t)),
	)
	return controller, store, queue
}

func TestControllerStart(t *testing.T) {
	controller, store, queue := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	if err := controller.Start(ctx, wf.ID); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if len(queue.started) != 1 || queue.started[0] != wf.ID {
		t.Errorf("启动任务未入队: %v", queue.started)
	}

	// 启动占位生效：状态已不再是 created
	got, _ := store.GetWorkflow(ctx, wf.ID)
	if got.Status != workflow.StatusRunning {
		t.Errorf("启动后状态应为 running，实际 %s", got.Status)
	}
}

func TestControllerStartEnqueuesOnce(t *testing.T) {
	controller, store, queue := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	if err := controller.Start(ctx, wf.ID); err != nil {
		t.Fatalf("首次启动失败: %v", err)
	}

	// worker 尚未消费任务（无检查点），重复启动必须被占位挡下
	err := controller.Start(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrAlreadyStarted) {
		t.Errorf("重复启动应返回 ErrAlreadyStarted，实际 %v", err)
	}
	if len(queue.started) != 1 {
		t.Errorf("启动任务只应入队1次，实际 %d", len(queue.started))
	}
}

func TestControllerStartRevertsOnEnqueueFailure(t *testing.T) {
	controller, store, queue := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	queue.retErr = errors.New("redis 不可用")
	if err := controller.Start(ctx, wf.ID); err == nil {
		t.Fatal("入队失败时启动应报错")
	}

	// 占位已回退，恢复后可重新启动
	got, _ := store.GetWorkflow(ctx, wf.ID)
	if got.Status != workflow.StatusCreated {
		t.Fatalf("入队失败后状态应回退为 created，实际 %s", got.Status)
	}

	queue.retErr = nil
	if err := controller.Start(ctx, wf.ID); err != nil {
		t.Errorf("恢复后重新启动失败: %v", err)
	}
}

func TestControllerStartNotFound(t *testing.T) {
	controller, _, _ := newTestController(t)

	err := controller.Start(context.Background(), "missing-id")
	if !errors.Is(err, workflow.ErrWorkflowNotFound) {
		t.Errorf("期望 ErrWorkflowNotFound，实际 %v", err)
	}
}

func TestControllerStartAlreadyStarted(t *testing.T) {
	controller, store, _ := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	t.Run("状态非created时拒绝", func(t *testing.T) {
		if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusRunning, workflow.StateOutline); err != nil {
			t.Fatalf("更新运行状态失败: %v", err)
		}
		err := controller.Start(ctx, wf.ID)
		if !errors.Is(err, workflow.ErrAlreadyStarted) {
			t.Errorf("期望 ErrAlreadyStarted，实际 %v", err)
		}
	})

	t.Run("已有检查点时拒绝", func(t *testing.T) {
		wf2 := createRunnableWorkflow(t, store)
		cp := &workflow.Checkpoint{
			WorkflowID: wf2.ID,
			Stage:      workflow.StageOutline,
			Snapshot:   workflow.NewSnapshot(workflow.StateReviewOutline),
		}
		if err := store.RecordCheckpoint(ctx, cp); err != nil {
			t.Fatalf("写入检查点失败: %v", err)
		}
		err := controller.Start(ctx, wf2.ID)
		if !errors.Is(err, workflow.ErrAlreadyStarted) {
			t.Errorf("期望 ErrAlreadyStarted，实际 %v", err)
		}
	})
}

func TestControllerStartTerminal(t *testing.T) {
	controller, store, _ := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusCancelled, workflow.StateOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}

	err := controller.Start(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("终态工作流应返回 ErrInvalidState，实际 %v", err)
	}
}

func TestControllerResume(t *testing.T) {
	controller, store, queue := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	// created 状态不可恢复
	err := controller.Resume(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("created 状态恢复应返回 ErrInvalidState，实际 %v", err)
	}

	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusPaused, workflow.StateOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}
	if err := controller.Resume(ctx, wf.ID); err != nil {
		t.Fatalf("暂停状态恢复失败: %v", err)
	}

	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusWaitingApproval, workflow.StateReviewOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}
	if err := controller.Resume(ctx, wf.ID); err != nil {
		t.Fatalf("待审批状态恢复失败: %v", err)
	}

	if len(queue.resumed) != 2 {
		t.Errorf("期望入队2次恢复任务，实际 %d", len(queue.resumed))
	}
	for _, reason := range queue.reasons {
		if reason != "manual" {
			t.Errorf("手动恢复原因应为 manual，实际 %s", reason)
		}
	}
}

func TestControllerPause(t *testing.T) {
	controller, store, _ := newTestController(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	// 只有 running 可暂停
	err := controller.Pause(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("created 状态暂停应返回 ErrInvalidState，实际 %v", err)
	}

	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusRunning, workflow.StateOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}
	if err := controller.Pause(ctx, wf.ID); err != nil {
		t.Fatalf("暂停失败: %v", err)
	}

	got, _ := store.GetWorkflow(ctx, wf.ID)
	if got.Status != workflow.StatusPaused {
		t.Errorf("期望 paused，实际 %s", got.Status)
	}

	// 待审批的工作流已处于挂起点，不接受暂停
	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusWaitingApproval, workflow.StateReviewOutline); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}
	err = controller.Pause(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("waiting_approval 状态暂停应返回 ErrInvalidState，实际 %v", err)
	}
	got, _ = store.GetWorkflow(ctx, wf.ID)
	if got.Status != workflow.StatusWaitingApproval {
		t.Errorf("被拒的暂停不应改变状态，实际 %s", got.Status)
	}
}

func TestControllerCancel(t *testing.T) {
	controller, store, _ := newTestController(t)
	ctx := context.Background()

	for _, status := range []workflow.Status{
		workflow.StatusCreated,
		workflow.StatusRunning,
		workflow.StatusPaused,
		workflow.StatusWaitingApproval,
	} {
		wf := createRunnableWorkflow(t, store)
		if status != workflow.StatusCreated {
			if err := store.UpdateRunState(ctx, wf.ID, status, workflow.StateOutline); err != nil {
				t.Fatalf("更新运行状态失败: %v", err)
			}
		}
		if err := controller.Cancel(ctx, wf.ID); err != nil {
			t.Errorf("%s 状态取消失败: %v", status, err)
		}
		got, _ := store.GetWorkflow(ctx, wf.ID)
		if got.Status != workflow.StatusCancelled {
			t.Errorf("期望 cancelled，实际 %s", got.Status)
		}
	}

	// 终态不可再取消
	wf := createRunnableWorkflow(t, store)
	if err := store.UpdateRunState(ctx, wf.ID, workflow.StatusCompleted, workflow.StateDone); err != nil {
		t.Fatalf("更新运行状态失败: %v", err)
	}
	err := controller.Cancel(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("终态取消应返回 ErrInvalidState，实际 %v", err)
	}
}

func TestRunWorkflowRejectsConcurrentRun(t *testing.T) {
	store := setupMachineTestStore(t)
	ctx := context.Background()
	wf := createRunnableWorkflow(t, store)

	// 占位阻塞执行器让首次运行停在 outline 阶段
	blocker := make(chan struct{})
	release := make(chan struct{})
	blocking := &fakeExecutor{
		stage: workflow.StageOutline,
		produce: func(in *workflow.StageInput) []*workflow.ContentArtifact {
			close(blocker)
			<-release
			return []*workflow.ContentArtifact{{
				ContentType: workflow.ContentTypeOutline,
				Content:     []byte(`{}`),
			}}
		},
	}
	gate := approval.NewGate(store, approval.WithGateLogger(zaptest.NewLogger(t)))
	machine := executor.NewMachine(store, gate, []workflow.StageExecutor{blocking},
		executor.WithMachineLogger(zaptest.NewLogger(t)),
	)
	controller := executor.NewController(store, &fakeQueue{}, machine,
		executor.WithControllerLogger(zaptest.NewLogger(t)),
	)

	done := make(chan error, 1)
	go func() { done <- controller.RunWorkflow(ctx, wf.ID) }()
	<-blocker

	// 首次运行尚未结束，第二次推进被拒绝
	err := controller.RunWorkflow(ctx, wf.ID)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("并发推进应返回 ErrInvalidState，实际 %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("首次运行失败: %v", err)
	}

	got, _ := store.GetWorkflow(ctx, wf.ID)
	if got.Status != workflow.StatusWaitingApproval {
		t.Errorf("期望 waiting_approval，实际 %s", got.Status)
	}
}
