package course

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backend/internal/workflow"

	"go.uber.org/zap"
)

// Exporter 课程导出器
type Exporter interface {
	// Export 将课程文档写出，返回导出清单
	Export(ctx context.Context, workflowID string, doc *Document) (*ExportManifest, error)
	// Format 导出格式标识
	Format() string
}

// JSONExporter 将课程导出为 JSON 文件
type JSONExporter struct {
	dir string
}

// NewJSONExporter 创建 JSON 导出器，dir 为导出根目录
func NewJSONExporter(dir string) *JSONExporter {
	return &JSONExporter{dir: dir}
}

// Format 导出格式标识
func (e *JSONExporter) Format() string {
	return "json"
}

// Export 写出课程 JSON 文件并返回清单
func (e *JSONExporter) Export(ctx context.Context, workflowID string, doc *Document) (*ExportManifest, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建导出目录失败: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化课程文档失败: %w", err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("course_%s.json", workflowID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("写出课程文件失败: %w", err)
	}

	return &ExportManifest{
		WorkflowID: workflowID,
		Title:      doc.Title,
		Format:     e.Format(),
		Path:       path,
		SizeBytes:  int64(len(data)),
		ExportedAt: time.Now().UTC(),
	}, nil
}

// ExportExecutor 导出阶段执行器
type ExportExecutor struct {
	exporter Exporter
	logger   *zap.Logger
}

// NewExportExecutor 创建导出执行器
func NewExportExecutor(exporter Exporter, logger *zap.Logger) *ExportExecutor {
	return &ExportExecutor{exporter: exporter, logger: logger}
}

// Stage 返回负责的阶段
func (e *ExportExecutor) Stage() workflow.Stage {
	return workflow.StageExport
}

// Execute 导出课程并记录清单产物
func (e *ExportExecutor) Execute(ctx context.Context, in *workflow.StageInput) (*workflow.StageResult, error) {
	if in.Course == nil {
		return nil, fmt.Errorf("缺少课程文档产物")
	}
	doc, err := DecodeDocument(in.Course.Content)
	if err != nil {
		return nil, err
	}

	manifest, err := e.exporter.Export(ctx, in.Workflow.ID, doc)
	if err != nil {
		return nil, fmt.Errorf("课程导出失败: %w", err)
	}

	content, err := EncodeJSON(manifest)
	if err != nil {
		return nil, err
	}

	e.logger.Info("课程导出完成",
		zap.String("workflow_id", in.Workflow.ID),
		zap.String("format", manifest.Format),
		zap.String("path", manifest.Path),
		zap.Int64("size_bytes", manifest.SizeBytes),
	)

	return &workflow.StageResult{
		Artifacts: []*workflow.ContentArtifact{{
			ContentType: workflow.ContentTypeExportManifest,
			Content:     content,
		}},
	}, nil
}
