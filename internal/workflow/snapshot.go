package workflow

// SnapshotSchemaVersion 当前快照结构版本，恢复时校验
const SnapshotSchemaVersion = 1

// ReviewSummary 评审结论摘要
// 由评审 Agent 产出，写入检查点快照，供自动审批规则和前端展示使用
type ReviewSummary struct {
	Score          float64            `json:"score"`                   // 总分 0-10
	Recommendation string             `json:"recommendation"`          // approve, revise, reject
	Feedback       string             `json:"feedback"`                // 评审意见
	Metrics        map[string]float64 `json:"metrics,omitempty"`       // 分项得分
	PromptTokens   int                `json:"prompt_tokens,omitempty"` // 评审调用消耗
}

// Snapshot 检查点快照
// 记录恢复执行所需的全部运行态：产物按ID引用，内容本体在 content_artifacts 表
type Snapshot struct {
	SchemaVersion int    `json:"schema_version"`
	State         State  `json:"state"` // 挂起时所处的状态机节点
	NextState     State  `json:"next_state,omitempty"`

	// 产物引用
	OutlineArtifactID string   `json:"outline_artifact_id,omitempty"`
	ModuleArtifactIDs []string `json:"module_artifact_ids,omitempty"`
	CourseArtifactID  string   `json:"course_artifact_id,omitempty"`
	ExportArtifactID  string   `json:"export_artifact_id,omitempty"`

	// 审批上下文
	Review           *ReviewSummary `json:"review,omitempty"`
	RevisionFeedback string         `json:"revision_feedback,omitempty"` // 上一次驳回的修改意见
	Attempt          int            `json:"attempt,omitempty"`           // 当前阶段第几次执行（驳回重做时递增）
}

// NewSnapshot 创建当前版本的快照
func NewSnapshot(state State) Snapshot {
	return Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		State:         state,
	}
}
