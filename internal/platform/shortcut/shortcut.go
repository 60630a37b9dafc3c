// Package shortcut registers the global toggle shortcut with the OS.
package shortcut

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.design/x/hotkey"

	"dictakey/internal/logger"
)

// Toggler receives one call per shortcut press. keys.Dispatcher implements it
// and applies the cooldown.
type Toggler interface {
	Toggle()
}

// Binding is a parsed shortcut such as "ctrl+shift+space".
type Binding struct {
	Mods []hotkey.Modifier
	Key  hotkey.Key
	Text string
}

func (b Binding) String() string {
	return b.Text
}

// Parse reads a "+"-separated combination. Exactly one non-modifier key is required.
func Parse(value string) (Binding, error) {
	text := strings.ToLower(strings.TrimSpace(value))
	if text == "" {
		return Binding{}, errors.New("empty shortcut")
	}

	var (
		binding Binding
		haveKey bool
		seen    = map[string]bool{}
		names   []string
	)
	for _, part := range strings.Split(text, "+") {
		name := strings.TrimSpace(part)
		if name == "" {
			return Binding{}, fmt.Errorf("shortcut %q has an empty part", value)
		}
		names = append(names, name)
		if mod, ok := modifiers[name]; ok {
			if !seen[name] {
				binding.Mods = append(binding.Mods, mod)
				seen[name] = true
			}
			continue
		}
		key, ok := lookupKey(name)
		if !ok {
			return Binding{}, fmt.Errorf("shortcut %q: unknown key %q", value, name)
		}
		if haveKey {
			return Binding{}, fmt.Errorf("shortcut %q names more than one key", value)
		}
		binding.Key = key
		haveKey = true
	}
	if !haveKey {
		return Binding{}, fmt.Errorf("shortcut %q has no key", value)
	}
	binding.Text = strings.Join(names, "+")
	return binding, nil
}

// registration is the part of *hotkey.Hotkey the listener needs.
type registration interface {
	Register() error
	Unregister() error
	Keydown() <-chan hotkey.Event
}

// Listener forwards presses of one global shortcut to a Toggler.
type Listener struct {
	binding Binding
	toggler Toggler
	log     *slog.Logger
	newHK   func(Binding) registration
}

func NewListener(binding Binding, toggler Toggler, log *slog.Logger) *Listener {
	return &Listener{
		binding: binding,
		toggler: toggler,
		log:     logger.OrDefault(log).With("component", "shortcut"),
		newHK: func(b Binding) registration {
			return hotkey.New(b.Mods, b.Key)
		},
	}
}

// Run registers the shortcut and blocks until ctx is done. The shortcut is
// unregistered before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	hk := l.newHK(l.binding)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register shortcut %s: %w", l.binding, err)
	}
	l.log.Info("toggle shortcut registered", "shortcut", l.binding.String())
	defer func() {
		if err := hk.Unregister(); err != nil {
			l.log.Warn("unregister shortcut failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hk.Keydown():
			l.toggler.Toggle()
		}
	}
}

func lookupKey(name string) (hotkey.Key, bool) {
	if key, ok := namedKeys[name]; ok {
		return key, true
	}
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return letterKeys[c-'a'], true
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], true
		}
	}
	if rest, ok := strings.CutPrefix(name, "f"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= len(functionKeys) && strconv.Itoa(n) == rest {
			return functionKeys[n-1], true
		}
	}
	return 0, false
}

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"return": hotkey.KeyReturn,
	"esc":    hotkey.KeyEscape,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,
}

var letterKeys = [...]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = [...]hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

var functionKeys = [...]hotkey.Key{
	hotkey.KeyF1, hotkey.KeyF2, hotkey.KeyF3, hotkey.KeyF4, hotkey.KeyF5, hotkey.KeyF6,
	hotkey.KeyF7, hotkey.KeyF8, hotkey.KeyF9, hotkey.KeyF10, hotkey.KeyF11, hotkey.KeyF12,
}
