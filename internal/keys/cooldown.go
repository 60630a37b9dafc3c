package keys

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between accepted toggle shortcut fires.
const DefaultCooldown = 500 * time.Millisecond

// CooldownGate rejects toggle shortcut fires that arrive within the cooldown of
// the last accepted one. Rejected fires are dropped, never queued.
type CooldownGate struct {
	interval time.Duration

	mu          sync.Mutex
	lastTrigger time.Time
}

func NewCooldownGate(interval time.Duration) *CooldownGate {
	if interval <= 0 {
		interval = DefaultCooldown
	}
	return &CooldownGate{interval: interval}
}

func (g *CooldownGate) TryTrigger(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lastTrigger.IsZero() && now.Sub(g.lastTrigger) < g.interval {
		return false
	}
	g.lastTrigger = now
	return true
}
