package course

import (
	"context"
	"fmt"

	"backend/internal/ai"
	"backend/internal/workflow"

	"go.uber.org/zap"
)

// ContentExecutor 模块内容生成阶段执行器
// 按大纲逐模块生成内容，每个模块一个产物
type ContentExecutor struct {
	agent agent
}

// NewContentExecutor 创建内容执行器
func NewContentExecutor(client ai.Client, logger *zap.Logger) *ContentExecutor {
	return &ContentExecutor{
		agent: agent{name: "content", client: client, logger: logger},
	}
}

// Stage 返回负责的阶段
func (e *ContentExecutor) Stage() workflow.Stage {
	return workflow.StageContentGeneration
}

// Execute 生成全部模块内容
func (e *ContentExecutor) Execute(ctx context.Context, in *workflow.StageInput) (*workflow.StageResult, error) {
	if in.Outline == nil {
		return nil, fmt.Errorf("缺少课程大纲产物")
	}
	outline, err := DecodeOutline(in.Outline.Content)
	if err != nil {
		return nil, err
	}
	outlineJSON := string(in.Outline.Content)

	artifacts := make([]*workflow.ContentArtifact, 0, len(outline.Modules))
	for _, module := range outline.Modules {
		var mc ModuleContent
		prompt := buildModuleUserPrompt(in, outline, module, outlineJSON)
		if err := e.agent.chatJSON(ctx, moduleContentSystemPrompt, prompt, &mc); err != nil {
			return nil, fmt.Errorf("模块 %d 内容生成失败: %w", module.Index, err)
		}

		mc.ModuleIndex = module.Index
		if mc.Title == "" {
			mc.Title = module.Title
		}
		if len(mc.Lessons) == 0 {
			return nil, fmt.Errorf("模块 %d 没有生成任何课时内容", module.Index)
		}

		content, err := EncodeJSON(&mc)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &workflow.ContentArtifact{
			ContentType:   workflow.ContentTypeModuleContent,
			ModuleIndex:   module.Index,
			Content:       content,
			IsAIGenerated: true,
		})

		e.agent.logger.Info("模块内容已生成",
			zap.String("workflow_id", in.Workflow.ID),
			zap.Int("module_index", module.Index),
			zap.Int("lessons", len(mc.Lessons)),
		)
	}

	return &workflow.StageResult{Artifacts: artifacts}, nil
}
