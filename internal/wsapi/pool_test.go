package wsapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPoolSendSucceedsOnceSessionsReady(t *testing.T) {
	wsURL, closeSrv := startEchoServer(t)
	defer closeSrv()

	pool := NewPool(3, func(i int) *Session {
		return New(Config{
			Name: "test",
			URL:  wsURL,
			OnMessage: func(raw []byte) (interface{}, string) {
				var f echoFrame
				if err := json.Unmarshal(raw, &f); err != nil {
					return nil, ""
				}
				return f, f.ID
			},
		}, zap.NewNop())
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		allReady := true
		for i := 0; i < pool.Size(); i++ {
			if !pool.sessions[i].Ready() {
				allReady = false
			}
		}
		if allReady {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, ok := pool.Send(echoFrame{ID: "r1", Echo: "a"}, "r1")
	if !ok {
		t.Fatal("Send: expected ok=true once pool sessions are ready")
	}
	if _, ok := resp.(echoFrame); !ok {
		t.Errorf("Send response type = %T, want echoFrame", resp)
	}
}

func TestPoolSendWithNoSessionsReturnsNotOk(t *testing.T) {
	pool := NewPool(0, func(i int) *Session { return nil }, zap.NewNop())
	_, ok := pool.Send(echoFrame{ID: "x"}, "x")
	if ok {
		t.Error("Send on empty pool should return ok=false")
	}
}
