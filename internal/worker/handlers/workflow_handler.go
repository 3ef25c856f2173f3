package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// WorkflowRunner 工作流执行器抽象，便于注入 mock
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflowID string) error
}

type WorkflowHandler struct {
	runner WorkflowRunner
	logger *zap.Logger
}

func NewWorkflowHandler(runner WorkflowRunner, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleStartWorkflow 处理工作流启动任务
func (h *WorkflowHandler) HandleStartWorkflow(ctx context.Context, t *asynq.Task) error {
	var p tasks.StartWorkflowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始执行工作流任务", zap.String("workflow_id", p.WorkflowID))

	if err := h.runner.RunWorkflow(ctx, p.WorkflowID); err != nil {
		h.logger.Error("工作流执行失败",
			zap.String("workflow_id", p.WorkflowID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("工作流执行告一段落", zap.String("workflow_id", p.WorkflowID))
	return nil
}

// HandleResumeWorkflow 处理工作流恢复任务（审批通过、手动恢复）
func (h *WorkflowHandler) HandleResumeWorkflow(ctx context.Context, t *asynq.Task) error {
	var p tasks.ResumeWorkflowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("恢复执行工作流任务",
		zap.String("workflow_id", p.WorkflowID),
		zap.String("reason", p.Reason),
	)

	if err := h.runner.RunWorkflow(ctx, p.WorkflowID); err != nil {
		h.logger.Error("工作流恢复执行失败",
			zap.String("workflow_id", p.WorkflowID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("工作流恢复执行告一段落", zap.String("workflow_id", p.WorkflowID))
	return nil
}
