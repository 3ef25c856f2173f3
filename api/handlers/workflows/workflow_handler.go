package workflows

import (
	"errors"

	response "backend/api/handlers/common"
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/workflow"
	"backend/internal/workflow/executor"
	"backend/internal/workflow/state"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler 课程工作流管理 Handler
type WorkflowHandler struct {
	store      *workflow.Store
	controller *executor.Controller
	runState   *state.Manager
}

// NewWorkflowHandler 创建 WorkflowHandler 实例
func NewWorkflowHandler(store *workflow.Store, controller *executor.Controller, runState *state.Manager) *WorkflowHandler {
	return &WorkflowHandler{
		store:      store,
		controller: controller,
		runState:   runState,
	}
}

// CreateWorkflow 创建课程工作流
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	wf := &workflow.Workflow{
		Title:  req.Title,
		Topic:  req.Topic,
		Config: req.Config,
	}
	if userCtx, ok := auth.GetUserContext(c); ok {
		wf.CreatedBy = userCtx.UserID
	}

	if err := h.store.CreateWorkflow(c.Request.Context(), wf); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseCreated(c, wf)
}

// GetWorkflow 查询工作流详情
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	wf, err := h.store.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	checkpoints, err := h.store.ListCheckpoints(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	hasOpenGate := false
	if _, err := h.store.GetOpenGate(c.Request.Context(), workflowID); err == nil {
		hasOpenGate = true
	} else if !errors.Is(err, workflow.ErrNoOpenGate) {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, WorkflowDetailResponse{
		Workflow:        wf,
		CheckpointCount: len(checkpoints),
		HasOpenGate:     hasOpenGate,
	})
}

// ListWorkflows 查询工作流列表
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	var req common.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	items, total, err := h.store.ListWorkflows(c.Request.Context(), req.GetOffset(), req.GetPageSize())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseList(c, items, total, &req)
}

// ListCheckpoints 查询工作流检查点历史（时间正序）
func (h *WorkflowHandler) ListCheckpoints(c *gin.Context) {
	workflowID := c.Param("id")

	// 先确认工作流存在，避免把空列表误判为成功
	if _, err := h.store.GetWorkflow(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	checkpoints, err := h.store.ListCheckpoints(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, gin.H{"checkpoints": checkpoints})
}

// GetRunState 查询工作流实时运行状态（Redis 镜像，落后于数据库时以数据库为准）
func (h *WorkflowHandler) GetRunState(c *gin.Context) {
	workflowID := c.Param("id")

	if rs, err := h.runState.Get(c.Request.Context(), workflowID); err == nil && rs != nil {
		common.ResponseSuccess(c, rs)
		return
	}

	// 镜像缺失时回退到数据库
	wf, err := h.store.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{
		"workflow_id":   wf.ID,
		"status":        wf.Status,
		"current_state": wf.CurrentState,
		"last_error":    wf.LastError,
		"updated_at":    wf.UpdatedAt,
	})
}

// StartWorkflow 启动工作流
func (h *WorkflowHandler) StartWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	if err := h.controller.Start(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流已启动", gin.H{"workflow_id": workflowID})
}

// PauseWorkflow 暂停工作流（阶段边界生效）
func (h *WorkflowHandler) PauseWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	if err := h.controller.Pause(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流暂停请求已受理", gin.H{"workflow_id": workflowID})
}

// ResumeWorkflow 恢复已暂停或等待审批的工作流
func (h *WorkflowHandler) ResumeWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	if err := h.controller.Resume(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流恢复执行中", gin.H{"workflow_id": workflowID})
}

// CancelWorkflow 取消工作流
func (h *WorkflowHandler) CancelWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	if err := h.controller.Cancel(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流已取消", gin.H{"workflow_id": workflowID})
}
