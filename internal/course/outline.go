package course

import (
	"context"
	"fmt"

	"backend/internal/ai"
	"backend/internal/workflow"

	"go.uber.org/zap"
)

// OutlineExecutor 大纲生成阶段执行器
type OutlineExecutor struct {
	agent agent
}

// NewOutlineExecutor 创建大纲执行器
func NewOutlineExecutor(client ai.Client, logger *zap.Logger) *OutlineExecutor {
	return &OutlineExecutor{
		agent: agent{name: "outline", client: client, logger: logger},
	}
}

// Stage 返回负责的阶段
func (e *OutlineExecutor) Stage() workflow.Stage {
	return workflow.StageOutline
}

// Execute 生成课程大纲
func (e *OutlineExecutor) Execute(ctx context.Context, in *workflow.StageInput) (*workflow.StageResult, error) {
	var outline Outline
	if err := e.agent.chatJSON(ctx, outlineSystemPrompt, buildOutlineUserPrompt(in), &outline); err != nil {
		return nil, err
	}

	if len(outline.Modules) == 0 {
		return nil, fmt.Errorf("大纲没有包含任何模块")
	}
	// 模块序号按位置归一，防止模型输出乱序编号
	for i := range outline.Modules {
		outline.Modules[i].Index = i
	}

	content, err := EncodeJSON(&outline)
	if err != nil {
		return nil, err
	}

	e.agent.logger.Info("课程大纲已生成",
		zap.String("workflow_id", in.Workflow.ID),
		zap.String("title", outline.Title),
		zap.Int("modules", len(outline.Modules)),
		zap.Int("attempt", in.Attempt),
	)

	return &workflow.StageResult{
		Artifacts: []*workflow.ContentArtifact{{
			ContentType:   workflow.ContentTypeOutline,
			Content:       content,
			IsAIGenerated: true,
		}},
	}, nil
}
