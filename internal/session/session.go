package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrNoSession is returned by Storage.Load when nothing is stored.
	ErrNoSession = errors.New("no stored session")
	// ErrInvalidPasscode is returned by Unlock when the code is rejected.
	ErrInvalidPasscode = errors.New("invalid passcode")
)

// Access is the serialized access session: {"granted":bool,"label"?:string}.
type Access struct {
	Granted bool   `json:"granted"`
	Label   string `json:"label,omitempty"`
}

// Storage persists one access session for the current tab.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Verifier resolves a plaintext code to a label.
type Verifier interface {
	Verify(secret string) (string, error)
}

// Manager owns the Locked/Unlocked state machine. Listeners observe every
// transition in order; a listener must not call Grant or Revoke.
type Manager struct {
	storage Storage

	transition sync.Mutex

	mu        sync.RWMutex
	current   Access
	listeners []func(Access)
}

// NewManager creates a Locked manager.
func NewManager(storage Storage) *Manager {
	if storage == nil {
		storage = NewMemoryStore()
	}
	return &Manager{storage: storage}
}

// OnChange registers fn to run after every transition.
func (m *Manager) OnChange(fn func(Access)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Current returns the in-memory session.
func (m *Manager) Current() Access {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Restore loads the persisted session. Missing or malformed data yields
// the Locked state; Restore never fails.
func (m *Manager) Restore(ctx context.Context) Access {
	m.transition.Lock()
	defer m.transition.Unlock()

	next := Access{}
	data, err := m.storage.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
	case err != nil:
		log.Printf("session: restore failed, starting locked: %v", err)
	default:
		var stored Access
		if err := json.Unmarshal(data, &stored); err != nil {
			log.Printf("session: discarding malformed session: %v", err)
			if clearErr := m.storage.Clear(ctx); clearErr != nil {
				log.Printf("session: clear malformed session: %v", clearErr)
			}
		} else if stored.Granted {
			next = stored
		}
	}

	m.set(next)
	return next
}

// Grant unlocks the session with label and persists it. Granting from an
// already unlocked session switches the label directly.
func (m *Manager) Grant(ctx context.Context, label string) Access {
	m.transition.Lock()
	defer m.transition.Unlock()

	next := Access{Granted: true, Label: label}
	data, err := json.Marshal(next)
	if err == nil {
		err = m.storage.Save(ctx, data)
	}
	if err != nil {
		log.Printf("session: persist grant: %v", err)
	}
	m.set(next)
	return next
}

// Revoke locks the session and clears persisted state.
func (m *Manager) Revoke(ctx context.Context) {
	m.transition.Lock()
	defer m.transition.Unlock()

	if err := m.storage.Clear(ctx); err != nil {
		log.Printf("session: clear on revoke: %v", err)
	}
	m.set(Access{})
}

// Unlock verifies code and grants the session on success. A rejected
// code leaves the current session untouched.
func (m *Manager) Unlock(ctx context.Context, verifier Verifier, code string) (Access, error) {
	label, err := verifier.Verify(code)
	if err != nil {
		return m.Current(), fmt.Errorf("%w: %w", ErrInvalidPasscode, err)
	}
	return m.Grant(ctx, label), nil
}

// Ping checks the storage backend.
func (m *Manager) Ping(ctx context.Context) error {
	return m.storage.Ping(ctx)
}

func (m *Manager) set(next Access) {
	m.mu.Lock()
	m.current = next
	listeners := append([]func(Access){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}
