package notification

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestConn 建立一对真实的 WebSocket 连接，返回服务端与客户端两侧
func dialTestConn(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("建立 WebSocket 连接失败: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-accepted:
		t.Cleanup(func() { server.Close() })
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("服务端未收到连接")
		return nil, nil
	}
}

func TestSendToUserWithConcurrentUnregister(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0))

	conns := make([]*websocket.Conn, 0, 4)
	for i := 0; i < 4; i++ {
		server, _ := dialTestConn(t)
		conns = append(conns, server)
		hub.Register("alice", server, nil)
	}

	// 发送与注销并发进行：发送方遍历的是快照，注销不能引发竞态
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = hub.SendToUser("alice", map[string]int{"seq": i})
		}
	}()
	go func() {
		defer wg.Done()
		for _, conn := range conns {
			hub.Unregister("alice", conn)
		}
	}()
	wg.Wait()

	if got := hub.ConnectedCount("alice"); got != 0 {
		t.Errorf("注销后连接数应为0，实际 %d", got)
	}
}

func TestSendToUserStoresOfflineAndReplays(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0))

	// 无在线连接时写入离线存储
	if err := hub.SendToUser("bob", map[string]string{"subject": "课程待审批"}); err != nil {
		t.Fatalf("离线消息写入失败: %v", err)
	}

	// 上线后重放
	server, client := dialTestConn(t)
	hub.Register("bob", server, nil)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("未收到离线重放消息: %v", err)
	}
	if !strings.Contains(string(msg), "课程待审批") {
		t.Errorf("重放内容异常: %s", msg)
	}
}

func TestSendToUserDeliversToAllConns(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0))

	server1, client1 := dialTestConn(t)
	server2, client2 := dialTestConn(t)
	hub.Register("carol", server1, nil)
	hub.Register("carol", server2, nil)

	if err := hub.SendToUser("carol", map[string]string{"event": "done"}); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	for _, client := range []*websocket.Conn{client1, client2} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("连接未收到消息: %v", err)
		}
		if !strings.Contains(string(msg), "done") {
			t.Errorf("消息内容异常: %s", msg)
		}
	}
}
