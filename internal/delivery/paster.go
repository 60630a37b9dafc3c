package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"

	"dictakey/internal/logger"
)

var ErrClipboardUnsupported = errors.New("clipboard is not available on this system")

// ClipboardIO is the clipboard access the paster needs.
type ClipboardIO interface {
	SetText(ctx context.Context, text string) error
	ReadText(ctx context.Context) (string, error)
}

// KeyInjector sends the platform paste chord to the focused window.
type KeyInjector interface {
	Available() bool
	PressPaste() error
}

const (
	DefaultSettleDelay  = 80 * time.Millisecond
	DefaultRestoreDelay = 120 * time.Millisecond
)

// Paster types text by placing it on the clipboard and pressing paste.
type Paster struct {
	clipboard    ClipboardIO
	keys         KeyInjector
	settleDelay  time.Duration
	restoreDelay time.Duration
	log          *slog.Logger
}

func NewPaster(clipboard ClipboardIO, keys KeyInjector, log *slog.Logger) *Paster {
	return &Paster{
		clipboard:    clipboard,
		keys:         keys,
		settleDelay:  DefaultSettleDelay,
		restoreDelay: DefaultRestoreDelay,
		log:          logger.OrDefault(log),
	}
}

// Paste injects text. With preserveClipboard the previous clipboard contents
// are put back once the paste chord has been delivered.
func (p *Paster) Paste(ctx context.Context, text string, preserveClipboard bool) error {
	if !p.keys.Available() {
		return errors.New("keystroke injection is not available")
	}

	var previous string
	hadPrevious := false
	if preserveClipboard {
		if prior, err := p.clipboard.ReadText(ctx); err == nil {
			previous, hadPrevious = prior, true
		} else {
			p.log.Debug("could not read clipboard before paste", "error", err)
		}
	}

	if err := p.clipboard.SetText(ctx, text); err != nil {
		return err
	}
	if err := sleep(ctx, p.settleDelay); err != nil {
		return err
	}
	if err := p.keys.PressPaste(); err != nil {
		return fmt.Errorf("paste keystroke failed: %w", err)
	}

	if hadPrevious {
		// The target app reads the clipboard asynchronously; restore with a fresh context.
		_ = sleep(context.WithoutCancel(ctx), p.restoreDelay)
		if err := p.clipboard.SetText(context.WithoutCancel(ctx), previous); err != nil {
			p.log.Warn("failed to restore clipboard", "error", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Keyboard injects keystrokes through keybd_event. The OS device is created
// lazily once, since creating it on Linux takes a couple of seconds.
type Keyboard struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
	mu   sync.Mutex
}

func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

func (k *Keyboard) init() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
		if k.err == nil && runtime.GOOS == "linux" {
			time.Sleep(2 * time.Second)
		}
	})
	return k.err
}

func (k *Keyboard) Available() bool {
	return k.init() == nil
}

func (k *Keyboard) PressPaste() error {
	if err := k.init(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	if runtime.GOOS == "darwin" {
		k.kb.HasSuper(true)
	} else {
		k.kb.HasCTRL(true)
	}
	k.kb.SetKeys(keybd_event.VK_V)
	return k.kb.Launching()
}
