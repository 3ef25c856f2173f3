package course

import (
	"fmt"
	"strings"

	"backend/internal/workflow"
)

// 各 Agent 的系统提示词。输出一律要求纯 JSON，便于结构化解析。

const outlineSystemPrompt = `你是一名资深课程设计师。根据给定的课程主题与配置设计完整的课程大纲。
要求：
1. 模块数量与配置一致，循序渐进，覆盖主题的核心知识点
2. 每个模块包含3-5个课时，每个课时给出明确的学习目标
3. 只输出 JSON，不要包含任何解释或 Markdown 代码块
输出结构：
{"title": "...", "description": "...", "audience": "...", "level": "...",
 "prerequisites": ["..."],
 "modules": [{"index": 0, "title": "...", "summary": "...",
              "lessons": [{"title": "...", "objective": "..."}]}]}`

const moduleContentSystemPrompt = `你是一名专业课程内容作者。根据课程大纲中指定模块的规划撰写完整的教学内容。
要求：
1. 每个课时输出 Markdown 正文，内容充实、示例具体，并提炼关键要点
2. 若要求包含练习，为模块附上3-5道单选测验题
3. 只输出 JSON，不要包含任何解释或 Markdown 代码块
输出结构：
{"module_index": 0, "title": "...",
 "lessons": [{"title": "...", "body": "...", "key_points": ["..."]}],
 "quiz": [{"question": "...", "options": ["..."], "answer": 0, "explanation": "..."}]}`

const reviewSystemPrompt = `你是一名严格的课程质量评审专家。对给定的课程内容进行评审打分。
评分维度：准确性(accuracy)、完整性(completeness)、清晰度(clarity)、受众匹配度(audience_fit)，各0-10分。
综合得分为各维度加权平均。recommendation 取值：approve(可发布)、revise(需修改)、reject(需重做)。
只输出 JSON，不要包含任何解释或 Markdown 代码块。
输出结构：
{"overall_score": 8.5,
 "quality_metrics": {"accuracy": 9, "completeness": 8, "clarity": 8.5, "audience_fit": 8.5},
 "recommendation": "approve", "feedback": "...",
 "strengths": ["..."], "issues": ["..."]}`

// buildConfigBlock 渲染课程配置段落
func buildConfigBlock(cfg workflow.CourseConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "目标受众: %s\n", defaultString(cfg.TargetAudience, "通用学习者"))
	fmt.Fprintf(&b, "难度级别: %s\n", defaultString(cfg.Level, "beginner"))
	fmt.Fprintf(&b, "课程时长: %d 周\n", defaultInt(cfg.DurationWeeks, 4))
	fmt.Fprintf(&b, "模块数量: %d\n", defaultInt(cfg.NumModules, 5))
	fmt.Fprintf(&b, "包含练习: %t\n", cfg.IncludeExercises)
	if cfg.WritingStyle != "" {
		fmt.Fprintf(&b, "写作风格: %s\n", cfg.WritingStyle)
	}
	if cfg.ContentDepth != "" {
		fmt.Fprintf(&b, "内容深度: %s\n", cfg.ContentDepth)
	}
	if cfg.Language != "" {
		fmt.Fprintf(&b, "输出语言: %s\n", cfg.Language)
	}
	return b.String()
}

// buildOutlineUserPrompt 构造大纲生成提示词
func buildOutlineUserPrompt(in *workflow.StageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "课程主题: %s\n\n课程配置:\n%s", in.Workflow.Topic, buildConfigBlock(in.Config))
	if in.RevisionFeedback != "" {
		fmt.Fprintf(&b, "\n上一版大纲被审批驳回，请针对以下修改意见重新设计:\n%s\n", in.RevisionFeedback)
	}
	return b.String()
}

// buildModuleUserPrompt 构造模块内容生成提示词
func buildModuleUserPrompt(in *workflow.StageInput, outline *Outline, module ModuleOutline, outlineJSON string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "课程《%s》完整大纲:\n%s\n\n", outline.Title, outlineJSON)
	fmt.Fprintf(&b, "请为第 %d 个模块「%s」撰写完整内容。\n\n课程配置:\n%s",
		module.Index, module.Title, buildConfigBlock(in.Config))
	if in.RevisionFeedback != "" {
		fmt.Fprintf(&b, "\n上一版内容被审批驳回，请针对以下修改意见重新撰写:\n%s\n", in.RevisionFeedback)
	}
	return b.String()
}

// buildReviewUserPrompt 构造评审提示词
func buildReviewUserPrompt(stage workflow.Stage, cfg workflow.CourseConfig, contentJSON string) string {
	kind := "课程大纲"
	if stage == workflow.StageContentGeneration {
		kind = "课程模块内容"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "请评审以下%s。\n\n课程配置:\n%s\n待评审内容:\n%s", kind, buildConfigBlock(cfg), contentJSON)
	return b.String()
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
