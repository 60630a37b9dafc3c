package hooks

import "dictakey/internal/domain"

// Windows virtual-key codes for the modifier keys that can be bound.
const (
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
	vkLMenu    = 0xA4
	vkRMenu    = 0xA5
	vkRWin     = 0x5C
)

// translateVK maps a Windows virtual-key code onto the key codes used by the
// classifier. fn has no virtual-key code and is never reported.
func translateVK(vk uint32) (uint16, domain.ModifierFlags, bool) {
	var key domain.PushToTalkKey
	switch vk {
	case vkRMenu:
		key = domain.KeyRightOption
	case vkLMenu:
		key = domain.KeyLeftOption
	case vkLControl:
		key = domain.KeyLeftControl
	case vkRControl:
		key = domain.KeyRightControl
	case vkRWin:
		key = domain.KeyRightCommand
	case vkRShift:
		key = domain.KeyRightShift
	case vkLShift:
		// Left shift is not bindable but still contributes to the flags.
		return 0, domain.ModShift, true
	default:
		return 0, 0, false
	}
	return key.KeyCode(), key.Modifier(), true
}

// modifierTracker derives the flag set from the physical keys currently held,
// so releasing one side does not clear a flag still held on the other.
type modifierTracker struct {
	held map[uint32]domain.ModifierFlags
}

func newModifierTracker() *modifierTracker {
	return &modifierTracker{held: make(map[uint32]domain.ModifierFlags)}
}

func (t *modifierTracker) update(vk uint32, mod domain.ModifierFlags, down bool) domain.ModifierFlags {
	if down {
		t.held[vk] = mod
	} else {
		delete(t.held, vk)
	}
	var flags domain.ModifierFlags
	for _, m := range t.held {
		flags |= m
	}
	return flags
}
