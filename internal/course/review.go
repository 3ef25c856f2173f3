package course

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/ai"
	"backend/internal/workflow"

	"go.uber.org/zap"
)

// ReviewAgent 内容评审 Agent，实现 workflow.Reviewer
// 对刚产出的内容打分，结论写入检查点快照，供自动审批与人工审批参考
type ReviewAgent struct {
	agent agent
}

// NewReviewAgent 创建评审 Agent
func NewReviewAgent(client ai.Client, logger *zap.Logger) *ReviewAgent {
	return &ReviewAgent{
		agent: agent{name: "review", client: client, logger: logger},
	}
}

// Review 评审阶段产物
func (r *ReviewAgent) Review(ctx context.Context, in *workflow.StageInput, produced []*workflow.ContentArtifact) (*workflow.ReviewSummary, error) {
	if len(produced) == 0 {
		return nil, fmt.Errorf("没有可评审的产物")
	}

	// 多产物（模块内容）合并为一个评审请求
	payload := make([]json.RawMessage, 0, len(produced))
	var stage workflow.Stage
	for _, a := range produced {
		payload = append(payload, json.RawMessage(a.Content))
	}
	if len(in.Modules) > 0 || produced[0].ContentType == workflow.ContentTypeModuleContent {
		stage = workflow.StageContentGeneration
	} else {
		stage = workflow.StageOutline
	}

	contentJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化评审内容失败: %w", err)
	}

	var report ReviewReport
	prompt := buildReviewUserPrompt(stage, in.Config, string(contentJSON))
	if err := r.agent.chatJSON(ctx, reviewSystemPrompt, prompt, &report); err != nil {
		return nil, err
	}

	r.agent.logger.Info("内容评审完成",
		zap.String("workflow_id", in.Workflow.ID),
		zap.Float64("score", report.OverallScore),
		zap.String("recommendation", report.Recommendation),
	)

	return &workflow.ReviewSummary{
		Score:          report.OverallScore,
		Recommendation: report.Recommendation,
		Feedback:       report.Feedback,
		Metrics:        report.QualityMetrics,
		PromptTokens:   ai.EstimateTokens(r.agent.client.Model(), prompt),
	}, nil
}
