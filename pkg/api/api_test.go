package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fsrewire/pkg/model"
)

type fixedState model.State

func (s fixedState) State() model.State { return model.State(s) }

type fakeJournal struct {
	entries   []model.ReconcileEntry
	err       error
	lastLimit int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]model.ReconcileEntry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

func newTestServer(t *testing.T, src StateSource, j JournalReader) (*httptest.Server, *WSHub) {
	t.Helper()
	hub := NewWSHub()
	mux := http.NewServeMux()
	RegisterRoutes(mux, src, j, hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

func runningState() fixedState {
	return fixedState{
		Status:   model.StatusRunning,
		Message:  "SimConnect is exposed on 0.0.0.0:500",
		Endpoint: &model.Endpoint{Address: "0.0.0.0", Port: "500"},
		Beacon:   "broadcasting",
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, runningState(), nil)
	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("status=%d type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var got model.State
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusRunning || got.Endpoint == nil || got.Endpoint.Port != "500" || got.Beacon != "broadcasting" {
		t.Fatalf("state = %+v", got)
	}

	post, err := http.Post(srv.URL+"/api/v1/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", post.StatusCode)
	}
}

func TestJournalEndpoint(t *testing.T) {
	j := &fakeJournal{entries: []model.ReconcileEntry{{ID: "a", Port: "500", Changed: true}}}
	srv, _ := newTestServer(t, runningState(), j)

	resp, err := http.Get(srv.URL + "/api/v1/journal?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got JournalResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 1 || got.Entries[0].ID != "a" || j.lastLimit != 5 {
		t.Fatalf("entries=%+v limit=%d", got.Entries, j.lastLimit)
	}

	bad, err := http.Get(srv.URL + "/api/v1/journal?limit=x")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", bad.StatusCode)
	}

	j.err = errors.New("db closed")
	failed, err := http.Get(srv.URL + "/api/v1/journal")
	if err != nil {
		t.Fatal(err)
	}
	failed.Body.Close()
	if failed.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failing journal status = %d", failed.StatusCode)
	}
}

func TestJournalDisabled(t *testing.T) {
	srv, _ := newTestServer(t, runningState(), nil)
	resp, err := http.Get(srv.URL + "/api/v1/journal")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func readMessage(t *testing.T, c *websocket.Conn) (WSMessage, model.State) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw struct {
		Type    string      `json:"type"`
		Payload model.State `json:"payload"`
	}
	if err := c.ReadJSON(&raw); err != nil {
		t.Fatalf("read ws: %v", err)
	}
	return WSMessage{Type: raw.Type}, raw.Payload
}

func TestStatusWebSocket(t *testing.T) {
	srv, hub := newTestServer(t, runningState(), nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	msg, st := readMessage(t, c)
	if msg.Type != "status" || st.Status != model.StatusRunning {
		t.Fatalf("initial message %s %+v", msg.Type, st)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	hub.Broadcast(WSMessage{Type: "status", Payload: model.State{Status: model.StatusError, Message: "beacon stopped"}})
	msg, st = readMessage(t, c)
	if msg.Type != "status" || st.Status != model.StatusError || st.Message != "beacon stopped" {
		t.Fatalf("broadcast message %s %+v", msg.Type, st)
	}

	c.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not dropped after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	s, err := Listen("127.0.0.1:0", runningState(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
