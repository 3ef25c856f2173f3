package course

import (
	"strings"
	"testing"

	"backend/internal/workflow"
)

func TestCompareArtifacts(t *testing.T) {
	from := &workflow.ContentArtifact{
		ContentType: workflow.ContentTypeOutline,
		Version:     1,
		Content:     []byte(`{"title":"Go 入门","modules":3}`),
	}
	to := &workflow.ContentArtifact{
		ContentType: workflow.ContentTypeOutline,
		Version:     2,
		Content:     []byte(`{"title":"Go 进阶","modules":3}`),
	}

	diff, err := CompareArtifacts(from, to)
	if err != nil {
		t.Fatalf("生成差异失败: %v", err)
	}

	if !strings.Contains(diff, "outline v1") || !strings.Contains(diff, "outline v2") {
		t.Errorf("差异头应包含版本标识:\n%s", diff)
	}
	if !strings.Contains(diff, "Go 入门") || !strings.Contains(diff, "Go 进阶") {
		t.Errorf("差异应包含变更内容:\n%s", diff)
	}
}

func TestCompareArtifactsSameContent(t *testing.T) {
	a := &workflow.ContentArtifact{
		ContentType: workflow.ContentTypeOutline,
		Version:     1,
		Content:     []byte(`{"title":"无变化"}`),
	}
	b := &workflow.ContentArtifact{
		ContentType: workflow.ContentTypeOutline,
		Version:     2,
		Content:     []byte(`{"title":"无变化"}`),
	}

	diff, err := CompareArtifacts(a, b)
	if err != nil {
		t.Fatalf("生成差异失败: %v", err)
	}
	if diff != "" {
		t.Errorf("内容相同时差异应为空:\n%s", diff)
	}
}

func TestCompareArtifactsTypeMismatch(t *testing.T) {
	from := &workflow.ContentArtifact{ContentType: workflow.ContentTypeOutline, Content: []byte(`{}`)}
	to := &workflow.ContentArtifact{ContentType: workflow.ContentTypeModuleContent, Content: []byte(`{}`)}

	if _, err := CompareArtifacts(from, to); err == nil {
		t.Error("类型不一致时应报错")
	}
}

func TestCompareArtifactsInvalidJSON(t *testing.T) {
	from := &workflow.ContentArtifact{ContentType: workflow.ContentTypeOutline, Content: []byte(`not-json`)}
	to := &workflow.ContentArtifact{ContentType: workflow.ContentTypeOutline, Content: []byte(`{}`)}

	if _, err := CompareArtifacts(from, to); err == nil {
		t.Error("非法 JSON 应报错")
	}
}
