package course

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"backend/internal/ai"
	"backend/internal/metrics"

	"go.uber.org/zap"
)

// agent 课程 Agent 公共部分：封装模型调用、JSON 解析与指标上报
type agent struct {
	name   string // 指标中的 agent 标签
	client ai.Client
	logger *zap.Logger
}

// chatJSON 调用模型并将输出解析为 JSON 结构
func (a *agent) chatJSON(ctx context.Context, system, user string, out any) error {
	req := &ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: system},
			{Role: ai.RoleUser, Content: user},
		},
		Temperature: 0.7,
	}

	start := time.Now()
	resp, err := a.client.ChatCompletion(ctx, req)
	metrics.ModelCallDuration.WithLabelValues(a.name, a.client.Model()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(a.name, a.client.Model(), "error").Inc()
		return err
	}
	metrics.ModelCallsTotal.WithLabelValues(a.name, a.client.Model(), "ok").Inc()

	// 部分网关不回传用量，本地估算兜底
	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = ai.EstimateTokens(a.client.Model(), system+user)
	}
	completionTokens := resp.Usage.CompletionTokens
	if completionTokens == 0 {
		completionTokens = ai.EstimateTokens(a.client.Model(), resp.Content)
	}
	metrics.ModelCallTokens.WithLabelValues(a.name, a.client.Model(), "prompt").Add(float64(promptTokens))
	metrics.ModelCallTokens.WithLabelValues(a.name, a.client.Model(), "completion").Add(float64(completionTokens))

	if err := json.Unmarshal([]byte(stripJSONFences(resp.Content)), out); err != nil {
		a.logger.Warn("模型输出不是合法 JSON",
			zap.String("agent", a.name),
			zap.String("content_head", head(resp.Content, 200)),
		)
		return fmt.Errorf("解析模型输出失败: %w", err)
	}
	return nil
}

// stripJSONFences 剥离模型偶尔输出的 Markdown 代码块围栏
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
