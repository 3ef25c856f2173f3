package approval_test

import (
	"testing"

	"backend/internal/workflow"
	"backend/internal/workflow/approval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAutoApprovalRule(t *testing.T) {
	t.Run("空表达式返回空规则", func(t *testing.T) {
		rule, err := approval.NewAutoApprovalRule("")
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("非法表达式报错", func(t *testing.T) {
		_, err := approval.NewAutoApprovalRule("score >= && 8")
		assert.Error(t, err)
	})
}

func TestAutoApprovalRuleEvaluate(t *testing.T) {
	rule, err := approval.NewAutoApprovalRule("score >= 8.5 && recommendation == 'approve'")
	require.NoError(t, err)

	cases := []struct {
		name   string
		review *workflow.ReviewSummary
		want   bool
	}{
		{
			name:   "高分且建议通过",
			review: &workflow.ReviewSummary{Score: 9.0, Recommendation: "approve"},
			want:   true,
		},
		{
			name:   "得分不足",
			review: &workflow.ReviewSummary{Score: 7.0, Recommendation: "approve"},
			want:   false,
		},
		{
			name:   "建议修改",
			review: &workflow.ReviewSummary{Score: 9.0, Recommendation: "revise"},
			want:   false,
		},
		{
			name:   "无评审结论",
			review: nil,
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rule.Evaluate(tc.review)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAutoApprovalRuleMetrics(t *testing.T) {
	// 分项指标以变量名直接暴露给表达式
	rule, err := approval.NewAutoApprovalRule("clarity >= 8 && completeness >= 7")
	require.NoError(t, err)

	review := &workflow.ReviewSummary{
		Score:          8.0,
		Recommendation: "approve",
		Metrics:        map[string]float64{"clarity": 9, "completeness": 8},
	}
	pass, err := rule.Evaluate(review)
	require.NoError(t, err)
	assert.True(t, pass)
}

func TestAutoApprovalRuleNonBoolean(t *testing.T) {
	rule, err := approval.NewAutoApprovalRule("score + 1")
	require.NoError(t, err)

	_, err = rule.Evaluate(&workflow.ReviewSummary{Score: 5})
	assert.Error(t, err)
}

func TestNilRuleEvaluate(t *testing.T) {
	var rule *approval.AutoApprovalRule

	pass, err := rule.Evaluate(&workflow.ReviewSummary{Score: 10, Recommendation: "approve"})
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Empty(t, rule.String())
}
