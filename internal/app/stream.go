package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agencyos/internal/content"
	"agencyos/internal/state"
	"agencyos/internal/util"
)

type streamEvent struct {
	Type     string           `json:"type"`
	Origin   string           `json:"origin"`
	State    state.Snapshot   `json:"state"`
	Progress content.Progress `json:"progress"`
	At       int64            `json:"at"`
}

// hub fans state events out to stream subscribers. Each subscriber
// holds at most one pending event; a newer event replaces it.
type hub struct {
	mu   sync.Mutex
	subs map[string]chan streamEvent
}

func newHub() *hub {
	return &hub{subs: make(map[string]chan streamEvent)}
}

func (h *hub) subscribe() (string, <-chan streamEvent) {
	id := util.NewID("sub")
	ch := make(chan streamEvent, 1)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) publish(event streamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- event
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// openStream registers a subscriber, then confirms access is still
// granted. A lock that lands between the HTTP gate and the subscribe
// would otherwise miss closeAll and leave the stream open.
func (s *Service) openStream() (string, <-chan streamEvent, bool) {
	id, events := s.stream.subscribe()
	if !s.Unlocked() {
		s.stream.unsubscribe(id)
		return "", nil, false
	}
	return id, events, true
}

func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.corsOrigin == "*" {
		opts.InsecureSkipVerify = true
	} else if s.corsOrigin != "" {
		opts.OriginPatterns = []string{s.corsOrigin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Printf("stream: accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	id, events, ok := s.service.openStream()
	if !ok {
		conn.Close(websocket.StatusPolicyViolation, "locked")
		return
	}
	defer s.service.stream.unsubscribe(id)

	ctx := conn.CloseRead(r.Context())

	snap := s.service.State()
	if err := writeEvent(ctx, conn, s.service.stateEvent(state.OriginLocal, snap)); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "locked")
				return
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("stream: write failed: %v", err)
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event streamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}
