package api

import (
	"fmt"
	"time"

	"backend/internal/ai"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/course"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/notification"
	"backend/internal/worker"
	"backend/internal/workflow"
	"backend/internal/workflow/approval"
	"backend/internal/workflow/executor"
	"backend/internal/workflow/state"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server 聚合 API 服务的全部依赖
type Server struct {
	Engine *gin.Engine
	Worker *worker.Server

	DB    *gorm.DB
	Redis redis.UniversalClient
	Queue queue.Client

	Store      *workflow.Store
	Gate       *approval.Gate
	Controller *executor.Controller
	Hub        *notification.WebSocketHub

	logger *zap.Logger
}

// NewServer 组装 API 服务
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	// --- 基础设施 ---
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db,
			&workflow.Workflow{},
			&workflow.Checkpoint{},
			&workflow.ApprovalDecision{},
			&workflow.ContentArtifact{},
		); err != nil {
			return nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	redisCfg := normalizeRedisConfig(cfg.Redis)
	rdb, err := infra.InitRedis(&redisCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 Redis 失败: %w", err)
	}

	// --- 存储与审批 ---
	store := workflow.NewStore(db, workflow.WithStoreLogger(log))

	hub := notification.NewWebSocketHub(
		notification.WithOfflineStore(notification.NewRedisOfflineStore(rdb, 100, 24*time.Hour)),
		notification.WithHubLogger(log),
	)

	var webhookConfig *notification.WebhookConfig
	if cfg.Notify.WebhookURL != "" {
		timeout := time.Duration(cfg.Notify.WebhookTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		webhookConfig = &notification.WebhookConfig{
			DefaultURL: cfg.Notify.WebhookURL,
			Timeout:    timeout,
		}
	}
	notifier := notification.NewMultiNotifier(webhookConfig, hub)

	rule, err := approval.NewAutoApprovalRule(cfg.Workflow.AutoApproveExpr)
	if err != nil {
		return nil, fmt.Errorf("解析自动审批规则失败: %w", err)
	}

	queueClient := queue.NewClient(redisCfg)
	bus := approval.NewEventBus()

	gate := approval.NewGate(store,
		approval.WithQueue(queueClient),
		approval.WithNotifier(notifier),
		approval.WithEventBus(bus),
		approval.WithAutoApprovalRule(rule),
		approval.WithGateLogger(log),
	)

	// --- 课程生成与状态机 ---
	aiClient, err := ai.NewOpenAIClient(&cfg.AI.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("初始化 AI 客户端失败: %w", err)
	}

	executors := []workflow.StageExecutor{
		course.NewOutlineExecutor(aiClient, log),
		course.NewContentExecutor(aiClient, log),
		course.NewAssemblyExecutor(log),
		course.NewExportExecutor(course.NewJSONExporter(cfg.Workflow.ExportDir), log),
	}

	runState := state.NewManager(rdb)

	machine := executor.NewMachine(store, gate, executors,
		executor.WithReviewer(course.NewReviewAgent(aiClient, log)),
		executor.WithBroadcaster(notification.NewStatusBroadcaster(hub)),
		executor.WithRunStateManager(runState),
		executor.WithStageTimeout(cfg.Workflow.StageTimeoutDuration()),
		executor.WithMachineLogger(log),
	)

	controller := executor.NewController(store, queueClient, machine,
		executor.WithControllerRunState(runState),
		executor.WithControllerLogger(log),
	)

	// --- 认证与 HTTP ---
	jwtService := auth.NewJWTService(
		cfg.Auth.JWTSecret,
		"courseflow",
		time.Duration(cfg.Auth.TokenExpiry)*time.Hour,
		rdb,
	)

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(), RequestMetrics(), CORS())

	RegisterRoutes(engine, &RouteDeps{
		DB:         db,
		Store:      store,
		Gate:       gate,
		Bus:        bus,
		Controller: controller,
		RunState:   runState,
		Hub:        hub,
		JWTService: jwtService,
	})

	workerServer := worker.NewServer(redisCfg, cfg.Workflow, controller, log)

	return &Server{
		Engine:     engine,
		Worker:     workerServer,
		DB:         db,
		Redis:      rdb,
		Queue:      queueClient,
		Store:      store,
		Gate:       gate,
		Controller: controller,
		Hub:        hub,
		logger:     log,
	}, nil
}

// Close 释放持有的外部资源
func (s *Server) Close() {
	if s.Worker != nil {
		s.Worker.Shutdown()
	}
	if s.Queue != nil {
		if err := s.Queue.Close(); err != nil {
			s.logger.Warn("关闭任务队列失败", zap.Error(err))
		}
	}
	if err := infra.CloseRedis(); err != nil {
		s.logger.Warn("关闭 Redis 失败", zap.Error(err))
	}
	if err := infra.CloseDatabase(); err != nil {
		s.logger.Warn("关闭数据库失败", zap.Error(err))
	}
}
