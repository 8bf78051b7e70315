package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"depotassign/internal/model"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.RunsWSHandler))
	t.Cleanup(srv.Close)
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunsWSSubscribeReceivesEvents(t *testing.T) {
	s := newTestServer(t)
	run := model.Run{ID: "run_ws", TenantID: "t_demo", SnapshotID: "snap", Status: model.RunQueued, StrategyIndex: -1, CreatedAt: time.Now().UTC()}
	if err := s.Store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	c := dialWS(t, s)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %+v err %v", ack, err)
	}

	pl, _ := json.Marshal(wsSubscribePayload{RunID: run.ID})
	// Two subscriptions on one connection: their fan-out goroutines write
	// concurrently, which must not corrupt frames.
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "2", Payload: pl}); err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	const events = 5
	for i := 0; i < events; i++ {
		s.Broker.Publish(run.ID, SSEEvent{Type: "run.running", Data: map[string]any{"runId": run.ID}})
		time.Sleep(5 * time.Millisecond)
	}

	got := 0
	for got < 2*events {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			t.Fatalf("read after %d messages: %v", got, err)
		}
		if msg.Type != "next" {
			t.Fatalf("unexpected frame: %+v", msg)
		}
		if msg.ID != "1" && msg.ID != "2" {
			t.Fatalf("unknown subscription id: %+v", msg)
		}
		var body struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(msg.Payload, &body); err != nil || body.Event != "run.running" {
			t.Fatalf("payload: %s err %v", msg.Payload, err)
		}
		got++
	}
}

func TestRunsWSSubscribeUnknownRun(t *testing.T) {
	s := newTestServer(t)
	c := dialWS(t, s)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %+v err %v", ack, err)
	}

	pl, _ := json.Marshal(wsSubscribePayload{RunID: "run_missing"})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var errMsg, done wsMessage
	if err := c.ReadJSON(&errMsg); err != nil || errMsg.Type != "error" {
		t.Fatalf("expected error frame: %+v err %v", errMsg, err)
	}
	if err := c.ReadJSON(&done); err != nil || done.Type != "complete" {
		t.Fatalf("expected complete frame: %+v err %v", done, err)
	}
}
