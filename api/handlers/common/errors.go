package common

import (
	"errors"

	"backend/internal/common"
	"backend/internal/workflow"

	"github.com/gin-gonic/gin"
)

// RespondDomainError 将工作流领域错误映射为统一的业务错误响应
func RespondDomainError(c *gin.Context, err error) {
	var stageErr *workflow.StageExecutionError

	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		common.ResponseError(c, common.CodeWorkflowNotFound, err.Error())
	case errors.Is(err, workflow.ErrArtifactNotFound):
		common.ResponseError(c, common.CodeArtifactNotFound, err.Error())
	case errors.Is(err, workflow.ErrNoOpenGate):
		common.ResponseError(c, common.CodeNoOpenGate, err.Error())
	case errors.Is(err, workflow.ErrAlreadyDecided):
		common.ResponseError(c, common.CodeAlreadyDecided, err.Error())
	case errors.Is(err, workflow.ErrAlreadyStarted):
		common.ResponseError(c, common.CodeWorkflowAlreadyStarted, err.Error())
	case errors.Is(err, workflow.ErrInvalidState):
		common.ResponseError(c, common.CodeWorkflowInvalidState, err.Error())
	case errors.As(err, &stageErr):
		common.ResponseError(c, common.CodeStageExecutionFailed, err.Error())
	default:
		common.ResponseServerError(c, err.Error())
	}
}
