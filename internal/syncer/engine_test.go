package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"agencyos/internal/clock"
	"agencyos/internal/session"
	"agencyos/internal/shared"
	"agencyos/internal/state"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store shared.Store) (*Engine, *state.Maps, *clock.FakeClock) {
	clk := clock.Fake(epoch)
	maps := state.New(nil)
	return New(store, maps, WithClock(clk)), maps, clk
}

func TestBurstOfEditsFlushesOnce(t *testing.T) {
	store := shared.NewMemoryStore()
	engine, maps, clk := newTestEngine(store)
	engine.Start()

	for _, id := range []string{"1.1", "1.2", "1.3", "2.1", "2.2"} {
		maps.SetChecked(id, true)
		clk.Advance(50 * time.Millisecond)
	}
	maps.SetComment("1.1", "feito")

	if store.Writes() != 0 {
		t.Fatalf("no write expected inside the window, got %d", store.Writes())
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected a single pending timer, got %d", clk.Pending())
	}

	clk.Advance(DefaultDelay)

	if store.Writes() != 1 {
		t.Fatalf("expected exactly one write, got %d", store.Writes())
	}
	doc := store.Document()
	if len(doc.CheckedMap) != 5 || doc.CommentsMap["1.1"] != "feito" {
		t.Errorf("flush should carry the latest state, got %+v", doc)
	}
	if doc.UpdatedBy != DefaultUpdatedBy {
		t.Errorf("updatedBy = %q", doc.UpdatedBy)
	}
	if doc.UpdatedAt != clk.Now().UnixMilli() {
		t.Errorf("updatedAt = %d, want %d", doc.UpdatedAt, clk.Now().UnixMilli())
	}
	if s := engine.Stats(); s.Flushes != 1 || s.Pending {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestFlushWritesEmptyMaps(t *testing.T) {
	store := shared.NewMemoryStore()
	engine, _, _ := newTestEngine(store)
	engine.Start()

	engine.Notify()
	engine.clock.(*clock.FakeClock).Advance(DefaultDelay)

	checked, ok := store.Field(shared.FieldCheckedMap)
	if !ok || string(checked) != "{}" {
		t.Fatalf("expected empty checkedMap to be written, got %s", checked)
	}
}

func TestStopCancelsPendingFlush(t *testing.T) {
	store := shared.NewMemoryStore()
	engine, maps, clk := newTestEngine(store)
	engine.Start()

	maps.SetChecked("1", true)
	clk.Advance(100 * time.Millisecond)
	engine.Stop()
	clk.Advance(time.Second)

	if store.Writes() != 0 {
		t.Fatalf("expected no write after Stop, got %d", store.Writes())
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", clk.Pending())
	}
	if store.Subscribers() != 0 {
		t.Fatalf("expected subscription torn down, got %d", store.Subscribers())
	}
	if maps.Checked("1") != true {
		t.Fatal("local edit must survive")
	}
}

func TestLockedEngineNeverTouchesStore(t *testing.T) {
	store := shared.NewMemoryStore()
	_, maps, clk := newTestEngine(store)

	maps.SetChecked("1", true)
	maps.SetComment("1", "x")
	clk.Advance(time.Minute)

	if store.Writes() != 0 || store.Subscribers() != 0 {
		t.Fatalf("locked engine touched the store: writes=%d subs=%d", store.Writes(), store.Subscribers())
	}
}

func TestRemoteSnapshotReplacesPresentFields(t *testing.T) {
	store := shared.NewMemoryStore()
	store.Put(shared.FieldCheckedMap, json.RawMessage(`{"3.2":false,"9.1":true}`))
	engine, maps, clk := newTestEngine(store)

	maps.SetChecked("3.2", true)
	maps.SetComment("3.2", "local")

	engine.Start()

	snap := maps.Snapshot()
	if len(snap.CheckedMap) != 2 || snap.CheckedMap["3.2"] || !snap.CheckedMap["9.1"] {
		t.Fatalf("checked map not replaced: %v", snap.CheckedMap)
	}
	if snap.CommentsMap["3.2"] != "local" {
		t.Fatalf("absent remote field must keep local value, got %v", snap.CommentsMap)
	}

	clk.Advance(time.Second)
	if store.Writes() != 0 {
		t.Fatalf("remote apply must not schedule a write, got %d", store.Writes())
	}
	if engine.Stats().RemoteApplied != 1 {
		t.Fatalf("RemoteApplied = %d", engine.Stats().RemoteApplied)
	}
}

func TestEditsPropagateBetweenDevices(t *testing.T) {
	store := shared.NewMemoryStore()
	a, mapsA, clkA := newTestEngine(store)
	b, mapsB, clkB := newTestEngine(store)
	a.Start()
	b.Start()

	mapsA.SetChecked("4.1", true)
	mapsA.SetComment("4.1", "revisar")
	clkA.Advance(DefaultDelay)

	if !mapsB.Checked("4.1") || mapsB.Comment("4.1") != "revisar" {
		t.Fatalf("device B did not receive the change: %+v", mapsB.Snapshot())
	}
	clkB.Advance(time.Second)
	if store.Writes() != 1 {
		t.Fatalf("receiving device must not write back, writes=%d", store.Writes())
	}
	if a.Stats().RemoteApplied != 0 {
		t.Fatalf("writer should ignore its own echo, applied=%d", a.Stats().RemoteApplied)
	}
	if b.Stats().RemoteApplied != 1 {
		t.Fatalf("receiver applied=%d", b.Stats().RemoteApplied)
	}
}

// gatedStore holds the first UpsertMerge until release is closed.
type gatedStore struct {
	*shared.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) UpsertMerge(ctx context.Context, patch shared.Patch) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.UpsertMerge(ctx, patch)
}

func TestSlowFlushIsNotOvertakenByNewerEdits(t *testing.T) {
	store := &gatedStore{
		MemoryStore: shared.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	engine, maps, clk := newTestEngine(store)
	engine.Start()

	maps.SetChecked("1", true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		clk.Advance(DefaultDelay)
	}()
	<-store.entered

	maps.SetChecked("2", true)
	clk.Advance(DefaultDelay)

	if store.Writes() != 0 {
		t.Fatalf("second flush must wait for the first, writes=%d", store.Writes())
	}
	if !engine.Stats().Pending {
		t.Fatal("edit made during an in-flight flush should stay pending")
	}

	close(store.release)
	<-done

	if store.Writes() != 1 {
		t.Fatalf("expected the first write to land, writes=%d", store.Writes())
	}
	if !maps.Checked("2") {
		t.Fatal("echo of the older write reverted a newer local edit")
	}

	clk.Advance(DefaultDelay)

	if store.Writes() != 2 {
		t.Fatalf("expected a follow-up write, writes=%d", store.Writes())
	}
	doc := store.Document()
	if !doc.CheckedMap["1"] || !doc.CheckedMap["2"] {
		t.Fatalf("last write should carry both edits, got %+v", doc.CheckedMap)
	}
	if s := engine.Stats(); s.Flushes != 2 || s.Pending || s.RemoteApplied != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestSameMillisecondWriteFromOtherDeviceIsApplied(t *testing.T) {
	store := shared.NewMemoryStore()
	a, mapsA, clkA := newTestEngine(store)
	b, mapsB, clkB := newTestEngine(store)
	a.Start()
	b.Start()

	mapsA.SetChecked("1", true)
	clkA.Advance(DefaultDelay)

	// Both devices share updatedBy and their clocks agree to the millisecond.
	mapsB.SetChecked("2", true)
	clkB.Advance(DefaultDelay)

	if doc := store.Document(); doc.UpdatedAt != clkA.Now().UnixMilli() {
		t.Fatalf("expected both writes in the same millisecond, updatedAt=%d", doc.UpdatedAt)
	}
	if !mapsA.Checked("2") {
		t.Fatalf("device A dropped B's write as its own echo: %+v", mapsA.Snapshot())
	}
	if got := a.Stats().RemoteApplied; got != 1 {
		t.Errorf("A applied=%d, want 1", got)
	}
}

func TestDisabledStoreIsQuiet(t *testing.T) {
	engine, maps, clk := newTestEngine(shared.Disabled{Reason: "test"})
	engine.Start()

	maps.SetChecked("1", true)
	clk.Advance(DefaultDelay)

	s := engine.Stats()
	if s.Flushes != 0 || s.FlushFailures != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if !maps.Checked("1") {
		t.Fatal("local state must keep the edit")
	}
}

type captureStore struct {
	shared.Disabled
	onChange func(shared.Document)
}

func (c *captureStore) Subscribe(_ context.Context, fn func(shared.Document)) (shared.Subscription, error) {
	c.onChange = fn
	return c.Disabled.Subscribe(context.Background(), fn)
}

func TestStaleSubscriptionCallbackIgnored(t *testing.T) {
	store := &captureStore{}
	engine, maps, _ := newTestEngine(store)
	engine.Start()
	stale := store.onChange
	engine.Stop()
	engine.Start()

	stale(shared.Document{CheckedMap: map[string]bool{"x": true}, Exists: true})
	if maps.Checked("x") {
		t.Fatal("callback from a torn-down subscription was applied")
	}

	store.onChange(shared.Document{CheckedMap: map[string]bool{"y": true}, Exists: true})
	if !maps.Checked("y") {
		t.Fatal("callback from the live subscription was dropped")
	}
}

func TestAttachFollowsSession(t *testing.T) {
	store := shared.NewMemoryStore()
	engine, maps, clk := newTestEngine(store)
	manager := session.NewManager(session.NewMemoryStore())
	engine.Attach(manager)
	ctx := context.Background()

	if engine.Stats().Active {
		t.Fatal("engine must start stopped while locked")
	}

	manager.Grant(ctx, "Sócio A")
	if !engine.Stats().Active || store.Subscribers() != 1 {
		t.Fatal("engine should run after unlock")
	}

	manager.Grant(ctx, "Sócio B")
	if store.Subscribers() != 1 {
		t.Fatalf("label switch must not resubscribe, subs=%d", store.Subscribers())
	}

	maps.SetChecked("1", true)
	manager.Revoke(ctx)
	clk.Advance(time.Second)

	if engine.Stats().Active || store.Subscribers() != 0 || store.Writes() != 0 {
		t.Fatalf("engine should stop on lock: %+v writes=%d", engine.Stats(), store.Writes())
	}
}
