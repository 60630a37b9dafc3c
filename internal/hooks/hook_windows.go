//go:build windows

package hooks

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"dictakey/internal/domain"
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10
)

var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetCurrentThreadId  = kernel32.NewProc("GetCurrentThreadId")

	// syscall.NewCallback slots are never freed, so one callback serves every hook.
	callbackOnce sync.Once
	callback     uintptr

	// Hook threads keyed by OS thread id. The callback runs on the thread that
	// installed the hook, which is how it finds its token.
	threadsMu sync.RWMutex
	threads   = map[uint32]*llHookState{}
)

type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

type llHookState struct {
	registry  *Registry
	token     Token
	key       domain.PushToTalkKey
	suppress  bool
	modifiers *modifierTracker
}

// llHook is a WH_KEYBOARD_LL hook running its own message loop on a locked thread.
type llHook struct {
	kind domain.EventSource

	mu       sync.Mutex
	threadID uint32
	done     chan struct{}
}

// NewGlobalMonitor observes modifier changes system-wide.
func NewGlobalMonitor() Source {
	return &llHook{kind: domain.EventSourceGlobal}
}

// NewSystemTap observes system-wide and swallows the bound key when permitted.
func NewSystemTap() Source {
	return &llHook{kind: domain.EventSourceTap}
}

func (h *llHook) Kind() domain.EventSource {
	return h.kind
}

func (h *llHook) Install(ctx context.Context, registry *Registry, token Token, opts InstallOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return errors.New("keyboard hook already installed")
	}

	state := &llHookState{
		registry:  registry,
		token:     token,
		key:       opts.Key,
		suppress:  opts.Suppress && h.kind == domain.EventSourceTap,
		modifiers: newModifierTracker(),
	}

	ready := make(chan error, 1)
	done := make(chan struct{})
	var threadID uint32

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		tid, _, _ := procGetCurrentThreadId.Call()
		threadID = uint32(tid)
		threadsMu.Lock()
		threads[threadID] = state
		threadsMu.Unlock()
		defer func() {
			threadsMu.Lock()
			delete(threads, threadID)
			threadsMu.Unlock()
		}()

		hook, _, callErr := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), hookCallback(), 0, 0)
		if hook == 0 {
			ready <- fmt.Errorf("SetWindowsHookExW failed: %v", callErr)
			return
		}
		ready <- nil

		var msg winMsg
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) <= 0 {
				break
			}
		}
		procUnhookWindowsHookEx.Call(hook)
	}()

	select {
	case err := <-ready:
		if err != nil {
			<-done
			return err
		}
	case <-time.After(2 * time.Second):
		return errors.New("timeout installing keyboard hook")
	case <-ctx.Done():
		return ctx.Err()
	}

	h.threadID = threadID
	h.done = done
	return nil
}

func (h *llHook) Remove() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return nil
	}

	procPostThreadMessageW.Call(uintptr(h.threadID), wmQuit, 0, 0)
	done := h.done
	h.done = nil
	h.threadID = 0

	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("timeout removing keyboard hook")
	}
}

func hookCallback() uintptr {
	callbackOnce.Do(func() {
		callback = syscall.NewCallback(lowLevelKeyboardProc)
	})
	return callback
}

func lowLevelKeyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) < 0 {
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	}

	tid, _, _ := procGetCurrentThreadId.Call()
	threadsMu.RLock()
	state := threads[uint32(tid)]
	threadsMu.RUnlock()

	k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
	if state == nil || k.flags&llkhfInjected != 0 {
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	}

	code, mod, ok := translateVK(k.vkCode)
	if ok {
		var down bool
		switch uint32(wParam) {
		case wmKeyDown, wmSysKeyDown:
			down = true
		case wmKeyUp, wmSysKeyUp:
			down = false
		}
		flags := state.modifiers.update(k.vkCode, mod, down)
		if code != 0 {
			state.registry.Dispatch(state.token, domain.RawKeyEvent{KeyCode: code, Flags: flags, At: time.Now()})
		}
		if state.suppress && code != 0 && code == state.key.KeyCode() {
			return 1
		}
	}

	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}
