package common

import "gorm.io/gorm"

// ByWorkflow 按工作流ID过滤
// 使用方法：db.Scopes(common.ByWorkflow(workflowID)).Find(&checkpoints)
func ByWorkflow(workflowID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("workflow_id = ?", workflowID)
	}
}

// ByStage 按工作流阶段过滤
func ByStage(stage string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("stage = ?", stage)
	}
}

// NewestFirst 按创建时间倒序
func NewestFirst() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC")
	}
}
