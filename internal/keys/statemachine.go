package keys

import (
	"time"

	"dictakey/internal/domain"
)

// BriefPressThreshold separates a tap (hands-free entry) from a hold.
const BriefPressThreshold = time.Second

type State int

const (
	StateIdle State = iota
	StateRecordingNormal
	StateRecordingHandsFree
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecordingNormal:
		return "recording_normal"
	case StateRecordingHandsFree:
		return "recording_hands_free"
	default:
		return "unknown"
	}
}

type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionStopAndTranscribe
	ActionEnterHandsFree
	ActionExitHandsFree
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	case ActionStopAndTranscribe:
		return "stop_and_transcribe"
	case ActionEnterHandsFree:
		return "enter_hands_free"
	case ActionExitHandsFree:
		return "exit_hands_free"
	default:
		return "unknown"
	}
}

// Transcribes reports whether the action ends the session and triggers transcription.
func (a Action) Transcribes() bool {
	return a == ActionStopAndTranscribe || a == ActionExitHandsFree
}

// SessionProbe reports whether a recording session is live.
type SessionProbe interface {
	SessionActive() bool
}

// KeyPressState is the transient state of the bound key.
type KeyPressState struct {
	Pressed        bool
	PressStartTime time.Time
	HandsFree      bool
}

// StateMachine derives recording actions from press signals. Like Classifier it
// is owned by the dispatcher loop.
type StateMachine struct {
	probe     SessionProbe
	threshold time.Duration

	state State
	press KeyPressState
}

func NewStateMachine(probe SessionProbe) *StateMachine {
	return &StateMachine{probe: probe, threshold: BriefPressThreshold}
}

func (m *StateMachine) State() State {
	return m.state
}

func (m *StateMachine) PressState() KeyPressState {
	return m.press
}

// Handle applies one signal observed at now and returns what the caller should do.
func (m *StateMachine) Handle(signal domain.PressSignal, now time.Time) Action {
	if signal.Pressed == m.press.Pressed {
		return ActionNone
	}
	m.press.Pressed = signal.Pressed

	if signal.Pressed {
		return m.handlePress(now)
	}
	return m.handleRelease(now)
}

func (m *StateMachine) handlePress(now time.Time) Action {
	switch m.state {
	case StateRecordingHandsFree:
		if m.sessionActive() {
			m.toIdle()
			return ActionExitHandsFree
		}
		// The session ended elsewhere; treat this as a fresh press.
		m.toIdle()
		m.press.Pressed = true
		return m.pressFromIdle(now)
	case StateIdle:
		return m.pressFromIdle(now)
	default:
		return ActionNone
	}
}

func (m *StateMachine) pressFromIdle(now time.Time) Action {
	if m.sessionActive() {
		// A session outlived the key state, e.g. it was started by the toggle
		// shortcut. The press ends it and the matching release is ignored.
		return ActionStopAndTranscribe
	}
	m.state = StateRecordingNormal
	m.press.PressStartTime = now
	return ActionStart
}

func (m *StateMachine) handleRelease(now time.Time) Action {
	if m.state != StateRecordingNormal {
		return ActionNone
	}

	held := now.Sub(m.press.PressStartTime)
	if held < m.threshold {
		if !m.sessionActive() {
			// Start failed, so there is nothing to keep running.
			m.toIdle()
			return ActionNone
		}
		m.state = StateRecordingHandsFree
		m.press.HandsFree = true
		return ActionEnterHandsFree
	}

	m.toIdle()
	return ActionStopAndTranscribe
}

// Reset forces Idle without emitting an action. A live session is left running.
func (m *StateMachine) Reset() {
	m.toIdle()
	m.press.Pressed = false
}

func (m *StateMachine) toIdle() {
	m.state = StateIdle
	m.press.PressStartTime = time.Time{}
	m.press.HandsFree = false
}

func (m *StateMachine) sessionActive() bool {
	return m.probe != nil && m.probe.SessionActive()
}
