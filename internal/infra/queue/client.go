package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueStartWorkflow(workflowID string) error
	EnqueueResumeWorkflow(workflowID, reason string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueStartWorkflow(workflowID string) error {
	return c.enqueue(tasks.TypeStartWorkflow, tasks.StartWorkflowPayload{WorkflowID: workflowID})
}

func (c *asynqClient) EnqueueResumeWorkflow(workflowID, reason string) error {
	return c.enqueue(tasks.TypeResumeWorkflow, tasks.ResumeWorkflowPayload{
		WorkflowID: workflowID,
		Reason:     reason,
	})
}

func (c *asynqClient) enqueue(taskType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(taskType, data)

	// 工作流执行可能较长；阶段失败由状态机落库，队列层不重试
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("workflow"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
