package workflow

import "context"

// StageInput 阶段执行器输入
// 由状态机从持久化的工作流与产物重建，执行器不持有任何跨阶段内存状态
type StageInput struct {
	Workflow *Workflow
	Config   CourseConfig

	// 前序阶段产物（按需填充）
	Outline *ContentArtifact
	Modules []*ContentArtifact
	Course  *ContentArtifact

	// 驳回重做时携带的修改意见，首次执行为空
	RevisionFeedback string
	// 当前阶段第几次执行，首次为1
	Attempt int
}

// StageResult 阶段执行器输出
type StageResult struct {
	// 本阶段产出的新产物（Version/ID 由存储层分配）
	Artifacts []*ContentArtifact
}

// StageExecutor 阶段执行器契约
// 失败返回 error：状态机记录错误并将工作流置为 Failed，不做自动重试
type StageExecutor interface {
	// Stage 返回执行器负责的阶段
	Stage() Stage
	// Execute 执行阶段，产出内容产物
	Execute(ctx context.Context, in *StageInput) (*StageResult, error)
}

// Reviewer 内容评审契约
// 在需要审批的阶段完成后调用，结论写入检查点快照
type Reviewer interface {
	Review(ctx context.Context, in *StageInput, produced []*ContentArtifact) (*ReviewSummary, error)
}

// StatusBroadcaster 状态变更广播契约
// 由通知层实现并注入状态机；状态机自身不持有全局连接状态
type StatusBroadcaster interface {
	BroadcastStatus(ctx context.Context, wf *Workflow)
}
