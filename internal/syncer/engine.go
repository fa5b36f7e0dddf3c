// Package syncer mirrors the collaborative maps to the shared state
// document while the access session is unlocked.
//
// Local edits are debounced (trailing edge) and flushed with a single
// merge-upsert. Remote snapshots replace the local maps for the fields
// they carry. Remote applies never schedule a flush.
package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"agencyos/internal/clock"
	"agencyos/internal/session"
	"agencyos/internal/shared"
	"agencyos/internal/state"
	"agencyos/internal/util"
)

const (
	DefaultDelay     = 300 * time.Millisecond
	DefaultUpdatedBy = "codigo-secreto"
	DefaultTimeout   = 10 * time.Second
)

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDelay sets the debounce window. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d
		}
	}
}

func WithUpdatedBy(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.updatedBy = name
		}
	}
}

// WithTimeout bounds each subscribe and upsert call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Stats are cumulative engine counters.
type Stats struct {
	Active        bool  `json:"active"`
	Pending       bool  `json:"pending"`
	Flushes       int64 `json:"flushes"`
	FlushFailures int64 `json:"flushFailures"`
	RemoteApplied int64 `json:"remoteApplied"`
}

type Engine struct {
	store     shared.Store
	maps      *state.Maps
	clock     clock.Clock
	delay     time.Duration
	updatedBy string
	timeout   time.Duration

	// writer tags this instance's writes; other devices share updatedBy.
	writer string

	// applyMu serializes remote applies against Stop so that nothing
	// from a torn-down subscription lands after Stop returns.
	applyMu sync.Mutex

	mu          sync.Mutex
	active      bool
	gen         uint64
	timer       *clock.Timer
	timerSeq    uint64
	sub         shared.Subscription
	lastWritten int64

	// at most one upsert is in flight; edits that settle meanwhile mark
	// the engine dirty and are flushed once it lands
	inFlight bool
	dirty    bool
	stats    Stats
}

// New creates a stopped engine and registers it for local edits on maps.
func New(store shared.Store, maps *state.Maps, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		maps:      maps,
		clock:     clock.Real(),
		delay:     DefaultDelay,
		updatedBy: DefaultUpdatedBy,
		timeout:   DefaultTimeout,
		writer:    util.NewID("w"),
	}
	for _, opt := range opts {
		opt(e)
	}
	maps.OnChange(func(origin state.Origin, _ state.Snapshot) {
		if origin == state.OriginLocal {
			e.Notify()
		}
	})
	return e
}

// Attach starts the engine whenever the session unlocks and stops it
// whenever it locks.
func (e *Engine) Attach(m *session.Manager) {
	m.OnChange(func(a session.Access) {
		if a.Granted {
			e.Start()
		} else {
			e.Stop()
		}
	})
	if m.Current().Granted {
		e.Start()
	}
}

// Start subscribes to the shared document. Calling Start on a running
// engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return
	}
	e.active = true
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	sub, err := e.store.Subscribe(ctx, func(doc shared.Document) {
		e.applyRemote(gen, doc)
	})
	if err != nil {
		log.Printf("syncer: subscribe: %v", err)
		return
	}

	e.mu.Lock()
	if !e.active || e.gen != gen {
		e.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	e.sub = sub
	e.mu.Unlock()
}

// Stop cancels any pending flush and tears down the subscription.
func (e *Engine) Stop() {
	e.applyMu.Lock()
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		e.applyMu.Unlock()
		return
	}
	e.active = false
	e.gen++
	e.timer.Stop()
	e.timer = nil
	e.timerSeq++
	e.dirty = false
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()
	e.applyMu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Notify records a local edit. The flush fires once the edits have been
// quiet for the debounce window; each call restarts the window.
func (e *Engine) Notify() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.armLocked()
}

func (e *Engine) armLocked() {
	e.timer.Stop()
	e.timerSeq++
	seq := e.timerSeq
	e.timer = e.clock.AfterFunc(e.delay, func() { e.flush(seq) })
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Active = e.active
	s.Pending = e.timer != nil || e.dirty
	return s
}

func (e *Engine) flush(seq uint64) {
	e.mu.Lock()
	if !e.active || seq != e.timerSeq {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	if e.inFlight {
		e.dirty = true
		e.mu.Unlock()
		return
	}
	e.inFlight = true
	snap := e.maps.Snapshot()
	now := e.clock.Now().UnixMilli()
	if now <= e.lastWritten {
		now = e.lastWritten + 1
	}
	e.lastWritten = now
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	err := e.store.UpsertMerge(ctx, shared.Patch{
		CheckedMap:  snap.CheckedMap,
		CommentsMap: snap.CommentsMap,
		UpdatedAt:   now,
		UpdatedBy:   e.updatedBy,
		Writer:      e.writer,
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if err != nil {
		e.stats.FlushFailures++
		if !errors.Is(err, shared.ErrUnavailable) {
			log.Printf("syncer: flush: %v", err)
		}
	} else {
		e.stats.Flushes++
	}
	if e.dirty {
		e.dirty = false
		if e.active && e.timer == nil {
			e.armLocked()
		}
	}
}

func (e *Engine) applyRemote(gen uint64, doc shared.Document) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	e.mu.Lock()
	if !e.active || e.gen != gen {
		e.mu.Unlock()
		return
	}
	// one of our own writes coming back
	if doc.Writer == e.writer && doc.UpdatedBy == e.updatedBy && doc.UpdatedAt != 0 && doc.UpdatedAt <= e.lastWritten {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if doc.CheckedMap == nil && doc.CommentsMap == nil {
		return
	}
	e.maps.ApplyRemote(doc.CheckedMap, doc.CommentsMap)

	e.mu.Lock()
	e.stats.RemoteApplied++
	e.mu.Unlock()
}
