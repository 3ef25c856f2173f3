package api

import (
	approvalhandlers "backend/api/handlers/approvals"
	authhandlers "backend/api/handlers/auth"
	contenthandlers "backend/api/handlers/contents"
	notificationhandlers "backend/api/handlers/notifications"
	workflowhandlers "backend/api/handlers/workflows"
	"backend/internal/auth"
	"backend/internal/notification"
	"backend/internal/workflow"
	"backend/internal/workflow/approval"
	"backend/internal/workflow/executor"
	"backend/internal/workflow/state"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// RouteDeps 路由注册所需的依赖
type RouteDeps struct {
	DB         *gorm.DB
	Store      *workflow.Store
	Gate       *approval.Gate
	Bus        *approval.EventBus
	Controller *executor.Controller
	RunState   *state.Manager
	Hub        *notification.WebSocketHub
	JWTService *auth.JWTService
}

// RegisterRoutes 注册全部路由
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) {
	// 探针与指标
	r.GET("/health", HealthCheck(deps.DB))
	r.GET("/ready", ReadinessCheck(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	workflowHandler := workflowhandlers.NewWorkflowHandler(deps.Store, deps.Controller, deps.RunState)
	approvalHandler := approvalhandlers.NewApprovalHandler(deps.Store, deps.Gate, deps.Bus)
	artifactHandler := contenthandlers.NewArtifactHandler(deps.Store)
	wsHandler := notificationhandlers.NewWebSocketHandler(deps.Hub)
	authHandler := authhandlers.NewAuthHandler(deps.JWTService)

	apiGroup := r.Group("/api")

	// 认证
	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/token", authHandler.IssueToken)
		authGroup.POST("/refresh", authHandler.RefreshToken)
		authGroup.POST("/logout", auth.AuthMiddleware(deps.JWTService), authHandler.Logout)
	}

	// 业务接口统一要求认证
	authed := apiGroup.Group("")
	authed.Use(auth.AuthMiddleware(deps.JWTService))

	// 工作流生命周期
	workflows := authed.Group("/workflows")
	{
		workflows.POST("", workflowHandler.CreateWorkflow)
		workflows.GET("", workflowHandler.ListWorkflows)
		workflows.GET("/:id", workflowHandler.GetWorkflow)
		workflows.GET("/:id/state", workflowHandler.GetRunState)
		workflows.GET("/:id/checkpoints", workflowHandler.ListCheckpoints)
		workflows.POST("/:id/start", workflowHandler.StartWorkflow)
		workflows.POST("/:id/pause", workflowHandler.PauseWorkflow)
		workflows.POST("/:id/resume", workflowHandler.ResumeWorkflow)
		workflows.POST("/:id/cancel", workflowHandler.CancelWorkflow)

		// 人工审批
		workflows.GET("/:id/gate", approvalHandler.GetOpenGate)
		workflows.POST("/:id/approve", approvalHandler.ApproveWorkflow)
		workflows.POST("/:id/reject", approvalHandler.RejectWorkflow)
		workflows.GET("/:id/approvals", approvalHandler.ListHistory)
		workflows.GET("/:id/events", approvalHandler.StreamEvents)

		// 内容产物
		workflows.GET("/:id/artifacts", artifactHandler.ListArtifacts)
	}

	// 审批工作台
	authed.GET("/approvals/pending", approvalHandler.ListPending)

	// 产物版本操作
	artifacts := authed.Group("/artifacts")
	{
		artifacts.GET("/compare", artifactHandler.CompareArtifacts)
		artifacts.GET("/:artifact_id", artifactHandler.GetArtifact)
		artifacts.GET("/:artifact_id/versions", artifactHandler.GetArtifactChain)
		artifacts.PUT("/:artifact_id", artifactHandler.EditArtifact)
	}

	// 实时通知
	authed.GET("/ws", wsHandler.Connect)
}
