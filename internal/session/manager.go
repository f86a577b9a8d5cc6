package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/aria/internal/turn"
)

var ErrNotFound = errors.New("session not found")

// Session owns one conversation and its turn controller for the life of a
// browser session. Chat state dies with the session; nothing is persisted.
type Session struct {
	ID             string
	Status         Status
	StartedAt      time.Time
	LastActivityAt time.Time

	Controller *turn.Controller
}

func (s *Session) Info() Info {
	return Info{
		ID:             s.ID,
		Status:         s.Status,
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

// ControllerFactory builds the per-session conversation + controller pair.
type ControllerFactory func() *turn.Controller

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	newController     ControllerFactory
	inactivityTimeout time.Duration
	onExpire          func(Info)
}

func NewManager(inactivityTimeout time.Duration, factory ControllerFactory) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		newController:     factory,
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create() *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
		Controller:     m.newController(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != StatusActive {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Info{}, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	delete(m.sessions, sessionID)
	return s.Info(), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []Info

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, s.Info())
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
