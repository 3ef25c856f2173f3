package workflow

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status 工作流实例状态
type Status string

const (
	StatusCreated         Status = "created"          // 已创建，尚未启动
	StatusRunning         Status = "running"          // 执行中
	StatusPaused          Status = "paused"           // 已暂停（阶段边界协作式暂停）
	StatusWaitingApproval Status = "waiting_approval" // 等待人工审批
	StatusCompleted       Status = "completed"        // 已完成
	StatusFailed          Status = "failed"           // 执行失败
	StatusCancelled       Status = "cancelled"        // 已取消
)

// IsTerminal 是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// State 状态机节点
type State string

const (
	StateOutline           State = "outline"            // 大纲生成
	StateReviewOutline     State = "review_outline"     // 大纲审批（持久化挂起点）
	StateContentGeneration State = "content_generation" // 模块内容生成
	StateReviewContent     State = "review_content"     // 内容审批（持久化挂起点）
	StateFinalAssembly     State = "final_assembly"     // 课程组装
	StateExport            State = "export"             // 导出
	StateDone              State = "done"               // 结束
	StateFailed            State = "failed"             // 失败
)

// Stage 可执行阶段（状态机中真正运行执行器的节点）
type Stage string

const (
	StageOutline           Stage = "outline"
	StageContentGeneration Stage = "content_generation"
	StageFinalAssembly     Stage = "final_assembly"
	StageExport            Stage = "export"
)

// ContentType 内容产物类型
type ContentType string

const (
	ContentTypeOutline        ContentType = "outline"         // 课程大纲
	ContentTypeModuleContent  ContentType = "module_content"  // 模块内容
	ContentTypeCourseDocument ContentType = "course_document" // 组装后的完整课程
	ContentTypeExportManifest ContentType = "export_manifest" // 导出清单
)

// DecisionType 审批决策类型
type DecisionType string

const (
	DecisionApproved DecisionType = "approved"
	DecisionRejected DecisionType = "rejected"
)

// CourseConfig 课程生成配置
type CourseConfig struct {
	TargetAudience   string `json:"target_audience"`   // 目标受众
	Level            string `json:"level"`             // 难度: beginner, intermediate, advanced
	DurationWeeks    int    `json:"duration_weeks"`    // 课程时长（周）
	NumModules       int    `json:"num_modules"`       // 模块数量
	IncludeExercises bool   `json:"include_exercises"` // 是否包含练习
	WritingStyle     string `json:"writing_style"`     // 写作风格
	ContentDepth     string `json:"content_depth"`     // 内容深度
	Language         string `json:"language"`          // 输出语言
}

// Workflow 课程工作流实例
type Workflow struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	Title        string       `json:"title" gorm:"size:255;not null"`
	Topic        string       `json:"topic" gorm:"size:512;not null"` // 课程主题
	Config       CourseConfig `json:"config" gorm:"type:jsonb;serializer:json"`
	Status       Status       `json:"status" gorm:"size:32;index;default:created"`
	CurrentState State        `json:"current_state" gorm:"size:32;default:outline"`
	LastError    string       `json:"last_error,omitempty" gorm:"type:text"`
	CreatedBy    string       `json:"created_by" gorm:"size:100;index"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (Workflow) TableName() string {
	return "course_workflows"
}

// BeforeCreate 创建前生成ID
func (w *Workflow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// Checkpoint 工作流检查点
// 追加写入，永不更新内容；审批门控字段除外（Decided/Approved 由条件更新原子翻转）
type Checkpoint struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	WorkflowID       string    `json:"workflow_id" gorm:"size:36;index;not null"`
	Stage            Stage     `json:"stage" gorm:"size:32;not null"`
	Snapshot         Snapshot  `json:"snapshot" gorm:"type:jsonb;serializer:json"` // 恢复执行所需的全部运行态
	RequiresApproval bool      `json:"requires_approval" gorm:"index"`
	Decided          bool      `json:"decided"`  // 审批门控是否已关闭
	Approved         bool      `json:"approved"` // 关闭时的决策结果
	CreatedAt        time.Time `json:"created_at" gorm:"index"`
}

// TableName 指定表名
func (Checkpoint) TableName() string {
	return "workflow_checkpoints"
}

// BeforeCreate 创建前生成ID
func (c *Checkpoint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsOpenGate 是否为待审批的开放门控
func (c *Checkpoint) IsOpenGate() bool {
	return c.RequiresApproval && !c.Decided
}

// ApprovalDecision 审批决策记录（审计追踪，只增不改）
type ApprovalDecision struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	CheckpointID string       `json:"checkpoint_id" gorm:"size:36;index;not null"`
	WorkflowID   string       `json:"workflow_id" gorm:"size:36;index;not null"`
	Decision     DecisionType `json:"decision" gorm:"size:16;not null"`
	Actor        string       `json:"actor" gorm:"size:100;not null"` // 决策人，自动审批时为 system
	Comments     string       `json:"comments" gorm:"type:text"`
	AutoApproved bool         `json:"auto_approved"`
	ReviewScore  *float64     `json:"review_score,omitempty"` // 决策时的评审得分
	CreatedAt    time.Time    `json:"created_at"`
}

// TableName 指定表名
func (ApprovalDecision) TableName() string {
	return "workflow_approval_decisions"
}

// BeforeCreate 创建前生成ID
func (d *ApprovalDecision) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// ContentArtifact 内容产物
// 不可变：修改内容时创建新版本并通过 ParentID 链接旧版本
type ContentArtifact struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	WorkflowID    string         `json:"workflow_id" gorm:"size:36;index;not null"`
	ContentType   ContentType    `json:"content_type" gorm:"size:32;index;not null"`
	ModuleIndex   int            `json:"module_index" gorm:"default:0"` // 模块内容的模块序号，其余类型为0
	Content       datatypes.JSON `json:"content" gorm:"type:jsonb"`
	Version       int            `json:"version" gorm:"not null;default:1"`
	ParentID      *string        `json:"parent_id,omitempty" gorm:"size:36;index"`
	IsAIGenerated bool           `json:"is_ai_generated"`
	IsHumanEdited bool           `json:"is_human_edited"`
	IsApproved    bool           `json:"is_approved"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName 指定表名
func (ContentArtifact) TableName() string {
	return "content_artifacts"
}

// BeforeCreate 创建前生成ID
func (a *ContentArtifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
