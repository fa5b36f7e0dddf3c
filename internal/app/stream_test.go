package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func dialStream(t *testing.T, env *testEnv) (*websocket.Conn, context.Context) {
	t.Helper()
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/state/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func TestStreamPublishesStateChanges(t *testing.T) {
	env := newTestEnv(t)
	env.unlock(t)
	conn, ctx := dialStream(t, env)

	var first streamEvent
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if first.Type != "state" || first.Progress.Total != 56 || first.Progress.Completed != 0 {
		t.Fatalf("unexpected initial event %+v", first)
	}

	env.do(t, http.MethodPost, "/api/state/checked/4.1/toggle", nil)

	var next streamEvent
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read change event: %v", err)
	}
	if next.Origin != "local" || !next.State.CheckedMap["4.1"] || next.Progress.Completed != 1 {
		t.Errorf("unexpected change event %+v", next)
	}
}

func TestStreamClosesOnLock(t *testing.T) {
	env := newTestEnv(t)
	env.unlock(t)
	conn, ctx := dialStream(t, env)

	var first streamEvent
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial event: %v", err)
	}

	env.do(t, http.MethodPost, "/api/access/lock", nil)

	var ev streamEvent
	err := wsjson.Read(ctx, conn, &ev)
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v (%v)", got, err)
	}
}

func TestStreamRequiresUnlock(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/state/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestHubKeepsLatestEvent(t *testing.T) {
	h := newHub()
	id, events := h.subscribe()

	h.publish(streamEvent{Type: "state", At: 1})
	h.publish(streamEvent{Type: "state", At: 2})

	if got := (<-events).At; got != 2 {
		t.Fatalf("expected latest event, got %d", got)
	}
	h.unsubscribe(id)
	h.unsubscribe(id)
	if h.len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.len())
	}
	if _, ok := <-events; ok {
		t.Fatal("channel should be closed")
	}
}

func TestStreamNotOpenedAfterLock(t *testing.T) {
	env := newTestEnv(t)
	env.unlock(t)

	id, events, ok := env.service.openStream()
	if !ok {
		t.Fatal("expected stream to open while unlocked")
	}
	env.service.stream.unsubscribe(id)
	if _, open := <-events; open {
		t.Fatal("unsubscribed channel should be closed")
	}

	// Lock lands after the HTTP gate passed but before subscribe.
	env.service.Lock(context.Background())
	if _, _, ok := env.service.openStream(); ok {
		t.Fatal("stream opened after lock")
	}
	if n := env.service.stream.len(); n != 0 {
		t.Fatalf("expected no subscribers after lock, got %d", n)
	}
}
