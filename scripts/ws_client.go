// Package main runs a demo WebSocket client for run events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a small snapshot
	snapBody := []byte(`{"name":"demo","distances":{"X":{"A":5,"B":9},"Y":{"A":6,"B":4,"C":3}},"capacities":{"X":1,"Y":2}}`)
	snapReq, _ := http.NewRequest(http.MethodPost, base+"/v1/snapshots", bytes.NewReader(snapBody))
	snapReq.Header.Set("Content-Type", "application/json")
	snapReq.Header.Set("X-Tenant-Id", "t_demo")
	snapReq.Header.Set("X-Role", "admin")
	snapResp, err := http.DefaultClient.Do(snapReq)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = snapResp.Body.Close() }()
	var snap struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(snapResp.Body).Decode(&snap); err != nil {
		log.Fatal(err)
	}
	log.Printf("Snapshot ID: %s", snap.ID)

	// Submit a run
	runBody := []byte(fmt.Sprintf(`{"snapshotId":%q}`, snap.ID))
	runReq, _ := http.NewRequest(http.MethodPost, base+"/v1/runs", bytes.NewReader(runBody))
	runReq.Header.Set("Content-Type", "application/json")
	runReq.Header.Set("X-Tenant-Id", "t_demo")
	runReq.Header.Set("X-Role", "admin")
	runResp, err := http.DefaultClient.Do(runReq)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = runResp.Body.Close() }()
	var run struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(runResp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", run.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init then subscribe
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"runId": run.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Wait for run events to arrive
	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
