package course

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// LessonOutline 课时大纲
type LessonOutline struct {
	Title     string `json:"title"`
	Objective string `json:"objective"` // 学习目标
}

// ModuleOutline 模块大纲
type ModuleOutline struct {
	Index   int             `json:"index"`
	Title   string          `json:"title"`
	Summary string          `json:"summary"`
	Lessons []LessonOutline `json:"lessons"`
}

// Outline 课程大纲
type Outline struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Audience     string          `json:"audience"`
	Level        string          `json:"level"`
	Prerequisites []string       `json:"prerequisites,omitempty"`
	Modules      []ModuleOutline `json:"modules"`
}

// QuizQuestion 测验题
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"` // 正确选项下标
	Explanation string   `json:"explanation,omitempty"`
}

// LessonContent 课时内容
type LessonContent struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"` // Markdown 正文
	KeyPoints []string `json:"key_points,omitempty"`
}

// ModuleContent 模块内容
type ModuleContent struct {
	ModuleIndex int             `json:"module_index"`
	Title       string          `json:"title"`
	Lessons     []LessonContent `json:"lessons"`
	Quiz        []QuizQuestion  `json:"quiz,omitempty"`
}

// Document 组装后的完整课程
type Document struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Outline     Outline         `json:"outline"`
	Modules     []ModuleContent `json:"modules"`
	AssembledAt time.Time       `json:"assembled_at"`
}

// ExportManifest 导出清单
type ExportManifest struct {
	WorkflowID string    `json:"workflow_id"`
	Title      string    `json:"title"`
	Format     string    `json:"format"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ExportedAt time.Time `json:"exported_at"`
}

// ReviewReport 评审报告
type ReviewReport struct {
	OverallScore   float64            `json:"overall_score"` // 0-10
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`
	Recommendation string             `json:"recommendation"` // approve, revise, reject
	Feedback       string             `json:"feedback"`
	Strengths      []string           `json:"strengths,omitempty"`
	Issues         []string           `json:"issues,omitempty"`
}

// DecodeOutline 解析大纲产物内容
func DecodeOutline(content datatypes.JSON) (*Outline, error) {
	var o Outline
	if err := json.Unmarshal(content, &o); err != nil {
		return nil, fmt.Errorf("解析课程大纲失败: %w", err)
	}
	return &o, nil
}

// DecodeModuleContent 解析模块内容产物
func DecodeModuleContent(content datatypes.JSON) (*ModuleContent, error) {
	var m ModuleContent
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("解析模块内容失败: %w", err)
	}
	return &m, nil
}

// DecodeDocument 解析课程文档产物
func DecodeDocument(content datatypes.JSON) (*Document, error) {
	var d Document
	if err := json.Unmarshal(content, &d); err != nil {
		return nil, fmt.Errorf("解析课程文档失败: %w", err)
	}
	return &d, nil
}

// EncodeJSON 将内容序列化为产物负载
func EncodeJSON(v any) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化内容失败: %w", err)
	}
	return datatypes.JSON(data), nil
}
