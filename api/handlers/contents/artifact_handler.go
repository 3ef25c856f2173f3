package contents

import (
	"encoding/json"
	"fmt"

	response "backend/api/handlers/common"
	"backend/internal/common"
	"backend/internal/course"
	"backend/internal/workflow"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// ArtifactHandler 内容产物 Handler
// 产物不可变，人工修改通过创建新版本实现
type ArtifactHandler struct {
	store *workflow.Store
}

// NewArtifactHandler 创建 ArtifactHandler 实例
func NewArtifactHandler(store *workflow.Store) *ArtifactHandler {
	return &ArtifactHandler{store: store}
}

// editRequest 内容编辑请求体
type editRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

// ListArtifacts 查询工作流全部内容产物
func (h *ArtifactHandler) ListArtifacts(c *gin.Context) {
	workflowID := c.Param("id")

	if _, err := h.store.GetWorkflow(c.Request.Context(), workflowID); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	artifacts, err := h.store.ListArtifacts(c.Request.Context(), workflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, gin.H{"artifacts": artifacts})
}

// GetArtifact 查询单个内容产物
func (h *ArtifactHandler) GetArtifact(c *gin.Context) {
	artifactID := c.Param("artifact_id")

	artifact, err := h.store.GetArtifact(c.Request.Context(), artifactID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, artifact)
}

// GetArtifactChain 查询产物版本链（从最初版本到指定版本）
func (h *ArtifactHandler) GetArtifactChain(c *gin.Context) {
	artifactID := c.Param("artifact_id")

	chain, err := h.store.ArtifactChain(c.Request.Context(), artifactID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseSuccess(c, gin.H{"versions": chain})
}

// EditArtifact 人工编辑内容，创建新版本并链接旧版本
func (h *ArtifactHandler) EditArtifact(c *gin.Context) {
	artifactID := c.Param("artifact_id")

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if !json.Valid(req.Content) {
		common.ResponseBadRequest(c, "content 必须是合法 JSON")
		return
	}

	parent, err := h.store.GetArtifact(c.Request.Context(), artifactID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	wf, err := h.store.GetWorkflow(c.Request.Context(), parent.WorkflowID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if wf.Status.IsTerminal() {
		response.RespondDomainError(c, fmt.Errorf("%w: 工作流已结束(%s)", workflow.ErrInvalidState, wf.Status))
		return
	}

	parentID := parent.ID
	edited := &workflow.ContentArtifact{
		WorkflowID:    parent.WorkflowID,
		ContentType:   parent.ContentType,
		ModuleIndex:   parent.ModuleIndex,
		Content:       datatypes.JSON(req.Content),
		ParentID:      &parentID,
		IsHumanEdited: true,
	}

	if err := h.store.SaveArtifact(c.Request.Context(), edited); err != nil {
		response.RespondDomainError(c, err)
		return
	}

	common.ResponseCreated(c, edited)
}

// CompareArtifacts 比较同一产物的两个版本
func (h *ArtifactHandler) CompareArtifacts(c *gin.Context) {
	fromID := c.Query("from")
	toID := c.Query("to")
	if fromID == "" || toID == "" {
		common.ResponseBadRequest(c, "必须提供 from 与 to 两个产物ID")
		return
	}

	from, err := h.store.GetArtifact(c.Request.Context(), fromID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	to, err := h.store.GetArtifact(c.Request.Context(), toID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if from.WorkflowID != to.WorkflowID {
		common.ResponseBadRequest(c, "只能比较同一工作流的产物")
		return
	}

	diff, err := course.CompareArtifacts(from, to)
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	common.ResponseSuccess(c, gin.H{
		"from": gin.H{"id": from.ID, "version": from.Version},
		"to":   gin.H{"id": to.ID, "version": to.Version},
		"diff": diff,
	})
}
