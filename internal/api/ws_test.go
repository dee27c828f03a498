package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/basket/taskd/internal/task"
)

func TestWebSocketEventFeed(t *testing.T) {
	srv, handler := newTestServer(t)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The subscription is registered during the HTTP upgrade; wait for it
	// so the create below cannot race the subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for srv.bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	created, err := srv.store.Create(ctx, &task.CreateRequest{
		Title:    "Stream me to the client",
		Category: task.CategoryFeature,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var ev wsEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Topic != "task.created" {
		t.Fatalf("topic = %q, want task.created", ev.Topic)
	}
	if ev.TaskID != created.ID {
		t.Fatalf("task_id = %d, want %d", ev.TaskID, created.ID)
	}
	if ev.Status != "pending" {
		t.Fatalf("status = %q, want pending", ev.Status)
	}
}

func TestWebSocketDeleteCarriesAffected(t *testing.T) {
	srv, handler := newTestServer(t)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base, err := srv.store.Create(ctx, &task.CreateRequest{Title: "Doomed base", Category: task.CategoryTesting})
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	if _, err := srv.store.Create(ctx, &task.CreateRequest{
		Title:        "Dependent survivor",
		Category:     task.CategoryTesting,
		Dependencies: []int64{base.ID},
	}); err != nil {
		t.Fatalf("create dependent: %v", err)
	}

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	deadline := time.Now().Add(2 * time.Second)
	for srv.bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := srv.store.Delete(ctx, base.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var ev wsEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Topic != "task.deleted" || ev.Affected != 1 {
		t.Fatalf("event = %+v, want task.deleted with affected 1", ev)
	}
}

func TestWebSocketRejectsPlainGet(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Fatalf("non-upgrade request should not succeed")
	}
}
