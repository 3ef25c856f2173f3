package approval

import (
	"fmt"

	"backend/internal/workflow"

	"github.com/Knetic/govaluate"
)

// AutoApprovalRule 自动审批规则
// 表达式针对评审结论求值，可用变量：score、recommendation 及各分项指标
// 示例："score >= 8.5 && recommendation == 'approve'"
type AutoApprovalRule struct {
	raw  string
	expr *govaluate.EvaluableExpression
}

// NewAutoApprovalRule 解析自动审批表达式
func NewAutoApprovalRule(expression string) (*AutoApprovalRule, error) {
	if expression == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("解析自动审批表达式失败: %w", err)
	}
	return &AutoApprovalRule{raw: expression, expr: expr}, nil
}

// String 返回原始表达式
func (r *AutoApprovalRule) String() string {
	if r == nil {
		return ""
	}
	return r.raw
}

// Evaluate 对评审结论求值
// 规则未配置或无评审结论时不自动审批；表达式求值出错视为不通过并返回错误
func (r *AutoApprovalRule) Evaluate(review *workflow.ReviewSummary) (bool, error) {
	if r == nil || review == nil {
		return false, nil
	}

	params := map[string]interface{}{
		"score":          review.Score,
		"recommendation": review.Recommendation,
	}
	for name, value := range review.Metrics {
		params[name] = value
	}

	result, err := r.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("自动审批表达式求值失败: %w", err)
	}

	pass, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("自动审批表达式必须返回布尔值，实际得到 %T", result)
	}
	return pass, nil
}
