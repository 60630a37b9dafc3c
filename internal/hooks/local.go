package hooks

import (
	"context"
	"sync"
	"time"

	"dictakey/internal/domain"
)

// LocalMonitor receives key events that the app window already sees, for
// example modifier changes forwarded by the frontend while it has focus.
type LocalMonitor struct {
	mu       sync.Mutex
	registry *Registry
	token    Token
}

func NewLocalMonitor() *LocalMonitor {
	return &LocalMonitor{}
}

func (m *LocalMonitor) Kind() domain.EventSource {
	return domain.EventSourceLocal
}

func (m *LocalMonitor) Install(_ context.Context, registry *Registry, token Token, _ InstallOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = registry
	m.token = token
	return nil
}

func (m *LocalMonitor) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = nil
	m.token = 0
	return nil
}

// Deliver forwards ev if the monitor is installed and reports whether it was.
func (m *LocalMonitor) Deliver(keyCode uint16, flags domain.ModifierFlags) bool {
	m.mu.Lock()
	registry, token := m.registry, m.token
	m.mu.Unlock()
	if registry == nil {
		return false
	}
	return registry.Dispatch(token, domain.RawKeyEvent{KeyCode: keyCode, Flags: flags, At: time.Now()})
}
