package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backend/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI 客户端适配器
type OpenAIClient struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// NewOpenAIClient 创建 OpenAI 客户端
func NewOpenAIClient(cfg *config.OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key 不能为空")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		clientConfig.OrgID = cfg.OrgID
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// ChatCompletion 对话补全（非流式，带重试）
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil {
			break
		}

		if !isRetryableError(err) {
			break
		}

		// 指数退避
		if i < c.maxRetries {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("OpenAI API 调用失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI API 返回空响应")
	}

	return &ChatResponse{
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Model 返回模型标识
func (c *OpenAIClient) Model() string {
	return c.model
}

// isRetryableError 判断错误是否可重试
// 简化判断：网络错误、限流与服务器错误可重试
func isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{"timeout", "connection", "rate limit", "429", "500", "502", "503", "504"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
