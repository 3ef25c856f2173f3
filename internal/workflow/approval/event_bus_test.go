package approval_test

import (
	"testing"
	"time"

	"backend/internal/workflow"
	"backend/internal/workflow/approval"
)

func TestEventBusSubscribePublish(t *testing.T) {
	bus := approval.NewEventBus()

	ch, cancel := bus.Subscribe("wf-1")
	defer cancel()

	bus.Publish(approval.Event{
		Type:         approval.EventGateOpened,
		WorkflowID:   "wf-1",
		CheckpointID: "cp-1",
		Stage:        workflow.StageOutline,
	})

	select {
	case evt := <-ch:
		if evt.Type != approval.EventGateOpened || evt.CheckpointID != "cp-1" {
			t.Errorf("事件内容异常: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Error("发布时应补齐事件时间戳")
		}
	case <-time.After(time.Second):
		t.Fatal("超时未收到事件")
	}
}

func TestEventBusIsolatesWorkflows(t *testing.T) {
	bus := approval.NewEventBus()

	ch, cancel := bus.Subscribe("wf-1")
	defer cancel()

	// 其他工作流的事件不应投递到本订阅
	bus.Publish(approval.Event{Type: approval.EventGateDecided, WorkflowID: "wf-2"})

	select {
	case evt := <-ch:
		t.Errorf("不应收到其他工作流的事件: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusCancelClosesChannel(t *testing.T) {
	bus := approval.NewEventBus()

	ch, cancel := bus.Subscribe("wf-1")
	cancel()

	if _, ok := <-ch; ok {
		t.Error("取消订阅后通道应关闭")
	}

	// 取消后发布不应 panic
	bus.Publish(approval.Event{Type: approval.EventGateOpened, WorkflowID: "wf-1"})
	// 重复取消应幂等
	cancel()
}

func TestEventBusDropsWhenSubscriberSlow(t *testing.T) {
	bus := approval.NewEventBus()

	ch, cancel := bus.Subscribe("wf-1")
	defer cancel()

	// 无人消费时连续发布不能阻塞，超出缓冲的事件被丢弃
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			bus.Publish(approval.Event{Type: approval.EventGateOpened, WorkflowID: "wf-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("慢消费者不应阻塞发布方")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > 16 {
		t.Errorf("缓冲内事件应保留、超出部分丢弃，实际收到 %d", received)
	}
}
