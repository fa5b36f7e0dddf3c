// Package state holds the two user-editable maps (checked items and
// free-text comments) as an explicit object shared by reference between
// the sync engine and the HTTP layer.
package state

import (
	"log"
	"strings"
	"sync"
)

// Origin tells listeners where a change came from.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Persister is the per-device storage for both maps.
type Persister interface {
	LoadChecked() map[string]bool
	LoadComments() map[string]string
	SaveChecked(map[string]bool) error
	SaveComments(map[string]string) error
}

// Snapshot is a deep copy of both maps.
type Snapshot struct {
	CheckedMap  map[string]bool   `json:"checkedMap"`
	CommentsMap map[string]string `json:"commentsMap"`
}

// Maps is a goroutine-safe pair of collaborative maps. Every change is
// written to the Persister regardless of access state.
type Maps struct {
	persist Persister

	// writeMu orders persistence and notification by mutation.
	writeMu sync.Mutex

	mu        sync.RWMutex
	checked   map[string]bool
	comments  map[string]string
	listeners []func(Origin, Snapshot)
}

// New loads both maps from persist. persist may be nil.
func New(persist Persister) *Maps {
	m := &Maps{
		persist:  persist,
		checked:  map[string]bool{},
		comments: map[string]string{},
	}
	if persist != nil {
		if loaded := persist.LoadChecked(); loaded != nil {
			m.checked = loaded
		}
		if loaded := persist.LoadComments(); loaded != nil {
			m.comments = loaded
		}
	}
	return m
}

// OnChange registers fn for every change. Listeners run in mutation
// order and must not mutate m.
func (m *Maps) OnChange(fn func(Origin, Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Snapshot returns copies of both maps.
func (m *Maps) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Checked reports whether id is checked.
func (m *Maps) Checked(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checked[id]
}

// Comment returns the comment for id.
func (m *Maps) Comment(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.comments[id]
}

// SetChecked records a local check mark. Unchecked items stay in the map
// as false, like the remote document does.
func (m *Maps) SetChecked(id string, checked bool) Snapshot {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.checked[id] = checked
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.saveChecked(snap.CheckedMap)
	m.notify(OriginLocal, snap)
	return snap
}

// ToggleChecked flips the check mark for id.
func (m *Maps) ToggleChecked(id string) Snapshot {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.checked[id] = !m.checked[id]
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.saveChecked(snap.CheckedMap)
	m.notify(OriginLocal, snap)
	return snap
}

// SetComment records a local comment; a blank comment removes the key.
func (m *Maps) SetComment(id, text string) Snapshot {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if strings.TrimSpace(text) == "" {
		delete(m.comments, id)
	} else {
		m.comments[id] = text
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.saveComments(snap.CommentsMap)
	m.notify(OriginLocal, snap)
	return snap
}

// ApplyRemote replaces each map wholesale with the remote value. A nil
// argument means the field was absent remotely and leaves that map alone.
func (m *Maps) ApplyRemote(checked map[string]bool, comments map[string]string) Snapshot {
	if checked == nil && comments == nil {
		return m.Snapshot()
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if checked != nil {
		m.checked = copyBools(checked)
	}
	if comments != nil {
		m.comments = copyStrings(comments)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if checked != nil {
		m.saveChecked(snap.CheckedMap)
	}
	if comments != nil {
		m.saveComments(snap.CommentsMap)
	}
	m.notify(OriginRemote, snap)
	return snap
}

// CompletedCount returns how many entries are checked.
func (m *Maps) CompletedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, v := range m.checked {
		if v {
			count++
		}
	}
	return count
}

func (m *Maps) snapshotLocked() Snapshot {
	return Snapshot{
		CheckedMap:  copyBools(m.checked),
		CommentsMap: copyStrings(m.comments),
	}
}

func (m *Maps) saveChecked(v map[string]bool) {
	if m.persist == nil {
		return
	}
	if err := m.persist.SaveChecked(v); err != nil {
		log.Printf("state: persist checked map: %v", err)
	}
}

func (m *Maps) saveComments(v map[string]string) {
	if m.persist == nil {
		return
	}
	if err := m.persist.SaveComments(v); err != nil {
		log.Printf("state: persist comments map: %v", err)
	}
}

func (m *Maps) notify(origin Origin, snap Snapshot) {
	m.mu.RLock()
	listeners := append([]func(Origin, Snapshot){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(origin, snap)
	}
}

func copyBools(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
