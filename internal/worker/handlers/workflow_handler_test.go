package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	called     bool
	workflowID string
	retErr     error
}

func (f *fakeRunner) RunWorkflow(ctx context.Context, workflowID string) error {
	f.called = true
	f.workflowID = workflowID
	return f.retErr
}

func TestWorkflowHandlerHandleStartWorkflow_Success(t *testing.T) {
	runner := &fakeRunner{}
	h := NewWorkflowHandler(runner, zaptest.NewLogger(t))
	ctx := context.Background()
	payload, _ := json.Marshal(tasks.StartWorkflowPayload{WorkflowID: "wf-1"})
	task := asynq.NewTask(tasks.TypeStartWorkflow, payload)
	if err := h.HandleStartWorkflow(ctx, task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !runner.called || runner.workflowID != "wf-1" {
		t.Fatalf("runner not invoked correctly: called=%v id=%s", runner.called, runner.workflowID)
	}
}

func TestWorkflowHandlerHandleStartWorkflow_RunError(t *testing.T) {
	expectedErr := errors.New("boom")
	runner := &fakeRunner{retErr: expectedErr}
	h := NewWorkflowHandler(runner, zaptest.NewLogger(t))
	ctx := context.Background()
	payload, _ := json.Marshal(tasks.StartWorkflowPayload{WorkflowID: "wf-2"})
	task := asynq.NewTask(tasks.TypeStartWorkflow, payload)
	if err := h.HandleStartWorkflow(ctx, task); !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

func TestWorkflowHandlerHandleStartWorkflow_InvalidPayload(t *testing.T) {
	runner := &fakeRunner{}
	h := NewWorkflowHandler(runner, zaptest.NewLogger(t))
	ctx := context.Background()
	task := asynq.NewTask(tasks.TypeStartWorkflow, []byte("not-json"))
	if err := h.HandleStartWorkflow(ctx, task); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
	if runner.called {
		t.Fatalf("runner should not be called when payload invalid")
	}
}

func TestWorkflowHandlerHandleResumeWorkflow_Success(t *testing.T) {
	runner := &fakeRunner{}
	h := NewWorkflowHandler(runner, zaptest.NewLogger(t))
	ctx := context.Background()
	payload, _ := json.Marshal(tasks.ResumeWorkflowPayload{WorkflowID: "wf-3", Reason: "approval"})
	task := asynq.NewTask(tasks.TypeResumeWorkflow, payload)
	if err := h.HandleResumeWorkflow(ctx, task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !runner.called || runner.workflowID != "wf-3" {
		t.Fatalf("runner not invoked correctly: called=%v id=%s", runner.called, runner.workflowID)
	}
}
