package approvals

import (
	"errors"
	"io"
	"net/http"

	response "backend/api/handlers/common"
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/workflow"
	"backend/internal/workflow/approval"

	"github.com/gin-gonic/gin"
)

// ApprovalHandler 人工审批 Handler
type ApprovalHandler struct {
	store *workflow.Store
	gate  *approval.Gate
	bus   *approval.EventBus
}

// NewApprovalHandler 创建 ApprovalHandler 实例
func NewApprovalHandler(store *workflow.Store, gate *approval.Gate, bus *approval.EventBus) *ApprovalHandler {
	return &ApprovalHandler{store: store, gate: gate, bus: bus}
}

// decideRequest 审批决策请求体
type decideRequest struct {
	Comments string `json:"comments" binding:"max=4000"`
}

// ApproveWorkflow 批准当前待审批检查点
func (h *ApprovalHandler) ApproveWorkflow(c *gin.Context) {
	h.decide(c, workflow.DecisionApproved)
}

// RejectWorkflow 驳回当前待审批检查点，工作流回到对应阶段重新生成
func (h *ApprovalHandler) RejectWorkflow(c *gin.Context) {
	h.decide(c, workflow.DecisionRejected)
}

func (h *ApprovalHandler) decide(c *gin.Context, decision workflow.DecisionType) {
	workflowID := c.Param("id")

	// 批准允许空请求体
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	// 驳回必须说明理由，作为下一轮生成的修改意见
	if decision == workflow.DecisionRejected && req.Comments == "" {
		common.ResponseBadRequest(c, "驳回时必须填写修改意见")
		return
	}

	actor := "anonymous"
	if userCtx, ok := auth.GetUserContext(c); ok {
		actor = userCtx.Actor()
	}

	record, err := h.gate.Decide(c.Request.Context(), workflowID, decision, actor, req.Comments)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, record)
}

// GetOpenGate 查询工作流当前待审批检查点
func (h *ApprovalHandler) GetOpenGate(c *gin.Context) {
	workflowID := c.Param("id")

	cp, err := h.store.GetOpenGate(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, cp)
}

// ListPending 查询全部待审批检查点（审批工作台）
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	pending, err := h.gate.Pending(c.Request.Context())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, gin.H{"pending": pending})
}

// StreamEvents 以 SSE 推送工作流的审批事件（门控开放/关闭），客户端断开即结束
func (h *ApprovalHandler) StreamEvents(c *gin.Context) {
	workflowID := c.Param("id")

	if _, err := h.store.GetWorkflow(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if h.bus == nil {
		common.ResponseError(c, http.StatusServiceUnavailable, "审批事件流未启用")
		return
	}

	events, cancel := h.bus.Subscribe(workflowID)
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ListHistory 查询工作流审批历史（时间倒序）
func (h *ApprovalHandler) ListHistory(c *gin.Context) {
	workflowID := c.Param("id")

	// 先确认工作流存在
	if _, err := h.store.GetWorkflow(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	decisions, err := h.gate.History(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, gin.H{"decisions": decisions})
}
