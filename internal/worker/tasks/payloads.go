package tasks

// 任务类型
const (
	TypeStartWorkflow  = "course:start_workflow"
	TypeResumeWorkflow = "course:resume_workflow"
)

// StartWorkflowPayload 工作流启动任务载荷
type StartWorkflowPayload struct {
	WorkflowID string `json:"workflow_id"`
}

// ResumeWorkflowPayload 工作流恢复任务载荷
// Reason 记录恢复原因（approved / rejected / manual），仅用于日志
type ResumeWorkflowPayload struct {
	WorkflowID string `json:"workflow_id"`
	Reason     string `json:"reason,omitempty"`
}
