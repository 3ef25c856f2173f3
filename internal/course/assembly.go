package course

import (
	"context"
	"fmt"
	"time"

	"backend/internal/workflow"

	"go.uber.org/zap"
)

// AssemblyExecutor 课程组装阶段执行器
// 纯数据组装：把已审批的大纲与模块内容合并为完整课程文档，不调用模型
type AssemblyExecutor struct {
	logger *zap.Logger
}

// NewAssemblyExecutor 创建组装执行器
func NewAssemblyExecutor(logger *zap.Logger) *AssemblyExecutor {
	return &AssemblyExecutor{logger: logger}
}

// Stage 返回负责的阶段
func (e *AssemblyExecutor) Stage() workflow.Stage {
	return workflow.StageFinalAssembly
}

// Execute 组装完整课程
func (e *AssemblyExecutor) Execute(ctx context.Context, in *workflow.StageInput) (*workflow.StageResult, error) {
	if in.Outline == nil {
		return nil, fmt.Errorf("缺少课程大纲产物")
	}
	if len(in.Modules) == 0 {
		return nil, fmt.Errorf("缺少模块内容产物")
	}

	outline, err := DecodeOutline(in.Outline.Content)
	if err != nil {
		return nil, err
	}

	modules := make([]ModuleContent, 0, len(in.Modules))
	for _, a := range in.Modules {
		mc, err := DecodeModuleContent(a.Content)
		if err != nil {
			return nil, err
		}
		modules = append(modules, *mc)
	}
	if len(modules) != len(outline.Modules) {
		return nil, fmt.Errorf("模块内容数量(%d)与大纲模块数量(%d)不一致", len(modules), len(outline.Modules))
	}

	doc := Document{
		Title:       outline.Title,
		Description: outline.Description,
		Outline:     *outline,
		Modules:     modules,
		AssembledAt: time.Now().UTC(),
	}

	content, err := EncodeJSON(&doc)
	if err != nil {
		return nil, err
	}

	e.logger.Info("课程组装完成",
		zap.String("workflow_id", in.Workflow.ID),
		zap.String("title", doc.Title),
		zap.Int("modules", len(doc.Modules)),
	)

	return &workflow.StageResult{
		Artifacts: []*workflow.ContentArtifact{{
			ContentType:   workflow.ContentTypeCourseDocument,
			Content:       content,
			IsAIGenerated: true,
		}},
	}, nil
}
