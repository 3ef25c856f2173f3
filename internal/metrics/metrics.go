package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courseflow_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 工作流执行指标
var (
	// WorkflowStartsTotal 工作流启动总数
	WorkflowStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_workflow_starts_total",
			Help: "工作流启动总数",
		},
		[]string{"status"}, // status: ok, rejected, error
	)

	// WorkflowsByStatus 各状态工作流数量
	WorkflowsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courseflow_workflows_by_status",
			Help: "各状态工作流数量",
		},
		[]string{"status"},
	)

	// StageExecutionsTotal 阶段执行总数
	StageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_stage_executions_total",
			Help: "工作流阶段执行总数",
		},
		[]string{"stage", "status"}, // status: ok, failed
	)

	// StageExecutionDuration 阶段执行耗时（秒）
	StageExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courseflow_stage_execution_duration_seconds",
			Help:    "工作流阶段执行耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
)

// 审批与通知指标
var (
	// ApprovalPendingGauge 当前待审批数量
	ApprovalPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courseflow_approval_pending_total",
			Help: "当前待审批检查点数量",
		},
	)

	// ApprovalDecisionsTotal 审批决策次数
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_approval_decisions_total",
			Help: "审批决策次数",
		},
		[]string{"decision", "auto"}, // decision: approved, rejected; auto: true, false
	)

	// ApprovalNotificationsTotal 审批通知发送次数
	ApprovalNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_approval_notifications_total",
			Help: "审批通知发送次数",
		},
		[]string{"channel", "status"},
	)

	// WebSocketConnectionsGauge WebSocket 在线连接数
	WebSocketConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courseflow_ws_connections",
			Help: "WebSocket 在线连接数",
		},
	)
)

// AI 模型调用指标
var (
	// ModelCallsTotal 模型调用总数
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_model_calls_total",
			Help: "AI 模型调用总数",
		},
		[]string{"agent", "model", "status"},
	)

	// ModelCallDuration 模型调用耗时（秒）
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courseflow_model_call_duration_seconds",
			Help:    "AI 模型调用耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"agent", "model"},
	)

	// ModelCallTokens 模型调用 Token 数量
	ModelCallTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_model_call_tokens_total",
			Help: "AI 模型调用 Token 总数",
		},
		[]string{"agent", "model", "type"}, // type: prompt, completion
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courseflow_build_info",
			Help: "CourseFlow 构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}
