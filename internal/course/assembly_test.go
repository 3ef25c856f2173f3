package course

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"backend/internal/workflow"

	"go.uber.org/zap/zaptest"
)

func testOutlineArtifact(t *testing.T, numModules int) *workflow.ContentArtifact {
	t.Helper()

	outline := Outline{
		Title:       "Kubernetes 实战",
		Description: "从零搭建生产级集群",
		Level:       "intermediate",
	}
	for i := 1; i <= numModules; i++ {
		outline.Modules = append(outline.Modules, ModuleOutline{
			Index: i,
			Title: "模块标题",
			Lessons: []LessonOutline{
				{Title: "课时", Objective: "目标"},
			},
		})
	}

	content, err := EncodeJSON(&outline)
	if err != nil {
		t.Fatalf("序列化大纲失败: %v", err)
	}
	return &workflow.ContentArtifact{
		ContentType: workflow.ContentTypeOutline,
		Content:     content,
	}
}

func testModuleArtifact(t *testing.T, index int) *workflow.ContentArtifact {
	t.Helper()

	mc := ModuleContent{
		ModuleIndex: index,
		Title:       "模块标题",
		Lessons: []LessonContent{
			{Title: "课时", Body: "# 正文"},
		},
	}
	content, err := EncodeJSON(&mc)
	if err != nil {
		t.Fatalf("序列化模块内容失败: %v", err)
	}
	return &workflow.ContentArtifact{
		ContentType: workflow.ContentTypeModuleContent,
		ModuleIndex: index,
		Content:     content,
	}
}

func TestAssemblyExecutor(t *testing.T) {
	exec := NewAssemblyExecutor(zaptest.NewLogger(t))
	if exec.Stage() != workflow.StageFinalAssembly {
		t.Errorf("阶段标识错误: %s", exec.Stage())
	}

	in := &workflow.StageInput{
		Workflow: &workflow.Workflow{ID: "wf-1"},
		Outline:  testOutlineArtifact(t, 2),
		Modules: []*workflow.ContentArtifact{
			testModuleArtifact(t, 1),
			testModuleArtifact(t, 2),
		},
	}

	result, err := exec.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("组装失败: %v", err)
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("期望1个产物，实际 %d", len(result.Artifacts))
	}

	a := result.Artifacts[0]
	if a.ContentType != workflow.ContentTypeCourseDocument {
		t.Errorf("产物类型应为 course_document，实际 %s", a.ContentType)
	}
	if !a.IsAIGenerated {
		t.Error("组装产物源自 AI 生成内容，应保留标记")
	}

	doc, err := DecodeDocument(a.Content)
	if err != nil {
		t.Fatalf("解析课程文档失败: %v", err)
	}
	if doc.Title != "Kubernetes 实战" || len(doc.Modules) != 2 {
		t.Errorf("课程文档内容异常: title=%s modules=%d", doc.Title, len(doc.Modules))
	}
	if doc.AssembledAt.IsZero() {
		t.Error("组装时间未写入")
	}
}

func TestAssemblyExecutorValidation(t *testing.T) {
	exec := NewAssemblyExecutor(zaptest.NewLogger(t))
	ctx := context.Background()
	wf := &workflow.Workflow{ID: "wf-1"}

	t.Run("缺少大纲", func(t *testing.T) {
		_, err := exec.Execute(ctx, &workflow.StageInput{
			Workflow: wf,
			Modules:  []*workflow.ContentArtifact{testModuleArtifact(t, 1)},
		})
		if err == nil {
			t.Error("缺少大纲应报错")
		}
	})

	t.Run("缺少模块内容", func(t *testing.T) {
		_, err := exec.Execute(ctx, &workflow.StageInput{
			Workflow: wf,
			Outline:  testOutlineArtifact(t, 2),
		})
		if err == nil {
			t.Error("缺少模块内容应报错")
		}
	})

	t.Run("模块数量不一致", func(t *testing.T) {
		_, err := exec.Execute(ctx, &workflow.StageInput{
			Workflow: wf,
			Outline:  testOutlineArtifact(t, 3),
			Modules:  []*workflow.ContentArtifact{testModuleArtifact(t, 1)},
		})
		if err == nil {
			t.Error("模块数量与大纲不一致应报错")
		}
	})
}

func TestJSONExporter(t *testing.T) {
	dir := t.TempDir()
	exporter := NewJSONExporter(dir)
	if exporter.Format() != "json" {
		t.Errorf("格式标识应为 json，实际 %s", exporter.Format())
	}

	doc := &Document{Title: "数据库原理", Description: "事务与索引"}
	manifest, err := exporter.Export(context.Background(), "wf-42", doc)
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if manifest.WorkflowID != "wf-42" || manifest.Title != "数据库原理" {
		t.Errorf("清单内容异常: %+v", manifest)
	}
	if manifest.SizeBytes <= 0 {
		t.Error("清单应记录文件大小")
	}

	data, err := os.ReadFile(manifest.Path)
	if err != nil {
		t.Fatalf("读取导出文件失败: %v", err)
	}
	var got Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("导出文件不是合法 JSON: %v", err)
	}
	if got.Title != doc.Title {
		t.Errorf("导出内容不一致: %s", got.Title)
	}
}

func TestExportExecutor(t *testing.T) {
	exec := NewExportExecutor(NewJSONExporter(t.TempDir()), zaptest.NewLogger(t))
	if exec.Stage() != workflow.StageExport {
		t.Errorf("阶段标识错误: %s", exec.Stage())
	}

	doc := Document{Title: "操作系统"}
	content, err := EncodeJSON(&doc)
	if err != nil {
		t.Fatalf("序列化课程文档失败: %v", err)
	}

	in := &workflow.StageInput{
		Workflow: &workflow.Workflow{ID: "wf-7"},
		Course: &workflow.ContentArtifact{
			ContentType: workflow.ContentTypeCourseDocument,
			Content:     content,
		},
	}
	result, err := exec.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("导出阶段失败: %v", err)
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("期望1个产物，实际 %d", len(result.Artifacts))
	}

	a := result.Artifacts[0]
	if a.ContentType != workflow.ContentTypeExportManifest {
		t.Errorf("产物类型应为 export_manifest，实际 %s", a.ContentType)
	}

	var manifest ExportManifest
	if err := json.Unmarshal(a.Content, &manifest); err != nil {
		t.Fatalf("解析清单失败: %v", err)
	}
	if manifest.Format != "json" || manifest.WorkflowID != "wf-7" {
		t.Errorf("清单内容异常: %+v", manifest)
	}

	if _, err := os.Stat(manifest.Path); err != nil {
		t.Errorf("导出文件不存在: %v", err)
	}
}

func TestExportExecutorMissingCourse(t *testing.T) {
	exec := NewExportExecutor(NewJSONExporter(t.TempDir()), zaptest.NewLogger(t))

	_, err := exec.Execute(context.Background(), &workflow.StageInput{
		Workflow: &workflow.Workflow{ID: "wf-1"},
	})
	if err == nil {
		t.Error("缺少课程文档应报错")
	}
}
