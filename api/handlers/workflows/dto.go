package workflows

import (
	"backend/internal/workflow"
)

// CreateWorkflowRequest 创建课程工作流请求
type CreateWorkflowRequest struct {
	Title  string                `json:"title" binding:"required,max=255"`
	Topic  string                `json:"topic" binding:"required,max=512"`
	Config workflow.CourseConfig `json:"config"`
}

// WorkflowDetailResponse 工作流详情（附带检查点与审批记录统计）
type WorkflowDetailResponse struct {
	*workflow.Workflow
	CheckpointCount int  `json:"checkpoint_count"`
	HasOpenGate     bool `json:"has_open_gate"`
}
