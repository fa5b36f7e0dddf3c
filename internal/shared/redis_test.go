package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func waitDocument(t *testing.T, ch <-chan Document) Document {
	t.Helper()
	select {
	case doc := <-ch:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document")
		return Document{}
	}
}

func TestRedisUpsertMergePreservesOtherFields(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	s.HSet("agencyos:doc:"+Path, "owner", `"agency"`)

	if err := store.UpsertMerge(ctx, Patch{
		CheckedMap:  map[string]bool{"3.2": true},
		CommentsMap: map[string]string{},
		UpdatedAt:   10,
		UpdatedBy:   "codigo-secreto",
	}); err != nil {
		t.Fatalf("UpsertMerge failed: %v", err)
	}

	doc, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !doc.CheckedMap["3.2"] || doc.CommentsMap == nil || doc.UpdatedAt != 10 || doc.UpdatedBy != "codigo-secreto" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if got := s.HGet("agencyos:doc:"+Path, "owner"); got != `"agency"` {
		t.Errorf("foreign field lost, got %q", got)
	}
}

func TestRedisReadMissingDocument(t *testing.T) {
	store, _ := setupTestRedis(t)
	doc, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.Exists {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestRedisSubscribeDeliversInitialAndChanges(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.UpsertMerge(ctx, Patch{CheckedMap: map[string]bool{"1": true}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	docs := make(chan Document, 8)
	sub, err := store.Subscribe(ctx, func(d Document) { docs <- d })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	initial := waitDocument(t, docs)
	if !initial.CheckedMap["1"] {
		t.Fatalf("expected current document on subscribe, got %+v", initial)
	}

	if err := store.UpsertMerge(ctx, Patch{CommentsMap: map[string]string{"1": "ok"}}); err != nil {
		t.Fatalf("UpsertMerge failed: %v", err)
	}
	changed := waitDocument(t, docs)
	if changed.CommentsMap["1"] != "ok" || !changed.CheckedMap["1"] {
		t.Fatalf("unexpected change delivery: %+v", changed)
	}
}

func TestRedisUnsubscribeStopsDeliveries(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	docs := make(chan Document, 8)
	sub, err := store.Subscribe(ctx, func(d Document) { docs <- d })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitDocument(t, docs)
	sub.Unsubscribe()
	sub.Unsubscribe()

	if err := store.UpsertMerge(ctx, Patch{UpdatedBy: "x"}); err != nil {
		t.Fatalf("UpsertMerge failed: %v", err)
	}
	select {
	case doc := <-docs:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", doc)
	case <-time.After(200 * time.Millisecond):
	}
}
