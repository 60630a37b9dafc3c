package domain

import (
	"fmt"
	"strings"
	"time"
)

// PushToTalkKey is one of the physical keys that can drive push-to-talk.
type PushToTalkKey string

const (
	KeyRightOption  PushToTalkKey = "rightOption"
	KeyLeftOption   PushToTalkKey = "leftOption"
	KeyLeftControl  PushToTalkKey = "leftControl"
	KeyRightControl PushToTalkKey = "rightControl"
	KeyFn           PushToTalkKey = "fn"
	KeyRightCommand PushToTalkKey = "rightCommand"
	KeyRightShift   PushToTalkKey = "rightShift"
)

// DefaultPushToTalkKey is used when nothing has been configured.
const DefaultPushToTalkKey = KeyRightCommand

// AllPushToTalkKeys lists every bindable key in display order.
func AllPushToTalkKeys() []PushToTalkKey {
	return []PushToTalkKey{
		KeyRightOption,
		KeyLeftOption,
		KeyLeftControl,
		KeyRightControl,
		KeyFn,
		KeyRightCommand,
		KeyRightShift,
	}
}

// ParsePushToTalkKey accepts the stable identifier, case-insensitively.
func ParsePushToTalkKey(value string) (PushToTalkKey, error) {
	trimmed := strings.TrimSpace(value)
	for _, key := range AllPushToTalkKeys() {
		if strings.EqualFold(string(key), trimmed) {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown push-to-talk key %q", value)
}

// KeyCode is the virtual key code reported by the input monitors.
func (k PushToTalkKey) KeyCode() uint16 {
	switch k {
	case KeyRightOption:
		return 0x3D
	case KeyLeftOption:
		return 0x3A
	case KeyLeftControl:
		return 0x3B
	case KeyRightControl:
		return 0x3E
	case KeyFn:
		return 0x3F
	case KeyRightCommand:
		return 0x36
	case KeyRightShift:
		return 0x3C
	default:
		return 0
	}
}

func (k PushToTalkKey) Label() string {
	switch k {
	case KeyRightOption:
		return "Right Option (⌥)"
	case KeyLeftOption:
		return "Left Option (⌥)"
	case KeyLeftControl:
		return "Left Control (⌃)"
	case KeyRightControl:
		return "Right Control (⌃)"
	case KeyFn:
		return "Fn"
	case KeyRightCommand:
		return "Right Command (⌘)"
	case KeyRightShift:
		return "Right Shift (⇧)"
	default:
		return string(k)
	}
}

// Modifier is the flag that is set while the key is held.
func (k PushToTalkKey) Modifier() ModifierFlags {
	switch k {
	case KeyRightOption, KeyLeftOption:
		return ModOption
	case KeyLeftControl, KeyRightControl:
		return ModControl
	case KeyFn:
		return ModFunction
	case KeyRightCommand:
		return ModCommand
	case KeyRightShift:
		return ModShift
	default:
		return 0
	}
}

// Debounced reports whether raw deliveries for this key are too noisy to act on immediately.
func (k PushToTalkKey) Debounced() bool {
	return k == KeyFn
}

// ModifierFlags is the modifier state carried by a flags-changed event.
type ModifierFlags uint8

const (
	ModShift ModifierFlags = 1 << iota
	ModControl
	ModOption
	ModCommand
	ModFunction
)

func (f ModifierFlags) Has(mod ModifierFlags) bool {
	return f&mod != 0
}

// EventSource identifies which input hook delivered a raw event.
type EventSource string

const (
	EventSourceGlobal EventSource = "global"
	EventSourceLocal  EventSource = "local"
	EventSourceTap    EventSource = "tap"
)

// RawKeyEvent is a key code plus modifier flags as delivered by an input hook.
type RawKeyEvent struct {
	Source  EventSource   `json:"source"`
	KeyCode uint16        `json:"keyCode"`
	Flags   ModifierFlags `json:"flags"`
	At      time.Time     `json:"at"`
}

// PressSignal is a classified transition of the bound key.
type PressSignal struct {
	Pressed bool
}

// PushToTalkBinding is the process-wide push-to-talk configuration.
type PushToTalkBinding struct {
	Key     PushToTalkKey `json:"key" yaml:"key"`
	Enabled bool          `json:"enabled" yaml:"enabled"`
}
