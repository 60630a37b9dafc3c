package keys

import (
	"time"

	"github.com/bep/debounce"

	"dictakey/internal/domain"
)

// DebounceWindow is how long a noisy key must hold one state before it is confirmed.
const DebounceWindow = 75 * time.Millisecond

// ConfirmFunc receives a debounced candidate once its window elapses. It runs on a
// timer goroutine and must only hand the candidate back to the owning loop.
type ConfirmFunc func(seq uint64, signal domain.PressSignal)

// pendingConfirmation is the debounce state for the noisy key.
type pendingConfirmation struct {
	candidate bool
	deadline  time.Time
	seq       uint64
}

// Classifier turns raw key events into press/release signals for the bound key.
// It is not safe for concurrent use; the dispatcher loop owns it.
type Classifier struct {
	key      domain.PushToTalkKey
	window   time.Duration
	confirm  ConfirmFunc
	schedule func(func())

	seq     uint64
	pending *pendingConfirmation
}

func NewClassifier(key domain.PushToTalkKey, confirm ConfirmFunc) *Classifier {
	return newClassifier(key, DebounceWindow, confirm)
}

func newClassifier(key domain.PushToTalkKey, window time.Duration, confirm ConfirmFunc) *Classifier {
	return &Classifier{
		key:      key,
		window:   window,
		confirm:  confirm,
		schedule: debounce.New(window),
	}
}

func (c *Classifier) Key() domain.PushToTalkKey {
	return c.key
}

// Classify returns the signal for ev immediately, or false when ev is for another
// key or has been deferred for debounce confirmation.
func (c *Classifier) Classify(ev domain.RawKeyEvent) (domain.PressSignal, bool) {
	if ev.KeyCode != c.key.KeyCode() {
		return domain.PressSignal{}, false
	}

	signal := domain.PressSignal{Pressed: ev.Flags.Has(c.key.Modifier())}
	if !c.key.Debounced() {
		return signal, true
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	// The debouncer drops the previous timer when it schedules this one, and the
	// sequence number makes any fire already in flight stale.
	c.seq++
	pending := &pendingConfirmation{candidate: signal.Pressed, deadline: at.Add(c.window), seq: c.seq}
	c.pending = pending
	confirm := c.confirm
	c.schedule(func() {
		if confirm != nil {
			confirm(pending.seq, domain.PressSignal{Pressed: pending.candidate})
		}
	})
	return domain.PressSignal{}, false
}

// Confirm accepts a fired candidate if it is still the most recent one.
func (c *Classifier) Confirm(seq uint64) (domain.PressSignal, bool) {
	if c.pending == nil || c.pending.seq != seq {
		return domain.PressSignal{}, false
	}
	signal := domain.PressSignal{Pressed: c.pending.candidate}
	c.pending = nil
	return signal, true
}

// Pending reports whether a candidate is waiting for its window to elapse.
func (c *Classifier) Pending() bool {
	return c.pending != nil
}

// Reset drops any pending candidate. A timer that still fires is ignored by Confirm.
func (c *Classifier) Reset() {
	c.seq++
	c.pending = nil
	if c.key.Debounced() {
		c.schedule(func() {})
	}
}
