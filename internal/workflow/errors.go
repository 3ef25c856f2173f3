package workflow

import (
	"errors"
	"fmt"
)

// 业务哨兵错误
var (
	// ErrWorkflowNotFound 工作流不存在
	ErrWorkflowNotFound = errors.New("工作流不存在")
	// ErrNoOpenGate 没有待审批的检查点
	ErrNoOpenGate = errors.New("没有待审批的检查点")
	// ErrAlreadyDecided 检查点审批门控已被关闭，决策只生效一次
	ErrAlreadyDecided = errors.New("该检查点已完成审批")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("当前状态不允许该操作")
	// ErrAlreadyStarted 工作流已经启动（存在检查点）
	ErrAlreadyStarted = errors.New("工作流已经启动")
	// ErrArtifactNotFound 内容产物不存在
	ErrArtifactNotFound = errors.New("内容产物不存在")
)

// StageExecutionError 阶段执行失败
type StageExecutionError struct {
	WorkflowID string
	Stage      Stage
	Err        error
}

// Error 实现error接口
func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("阶段 %s 执行失败: %v", e.Stage, e.Err)
}

// Unwrap 支持 errors.Is / errors.As
func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// NewStageExecutionError 创建阶段执行错误
func NewStageExecutionError(workflowID string, stage Stage, err error) *StageExecutionError {
	return &StageExecutionError{WorkflowID: workflowID, Stage: stage, Err: err}
}

// StorageError 持久化层错误
type StorageError struct {
	Op  string // 失败的操作
	Err error
}

// Error 实现error接口
func (e *StorageError) Error() string {
	return fmt.Sprintf("存储操作 %s 失败: %v", e.Op, e.Err)
}

// Unwrap 支持 errors.Is / errors.As
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError 创建存储错误
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
