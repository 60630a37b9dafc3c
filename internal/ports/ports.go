package ports

import (
	"context"
	"time"

	"dictakey/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture writing to a file.
type AudioSession interface {
	Stop() error
}

// AudioCapture records the microphone into a WAV file at path.
type AudioCapture interface {
	Start(ctx context.Context, path string, cfg AudioConfig) (AudioSession, error)
}

// AudioInspector reads metadata from recorded audio.
type AudioInspector interface {
	Duration(path string) (time.Duration, error)
}

// Transcriber turns a recorded file into text using the given model.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, model domain.ModelRef) (string, error)
}

// ModelLoader warms and releases local model resources.
type ModelLoader interface {
	Load(ctx context.Context, model domain.ModelRef) error
	Unload(model domain.ModelRef) error
}

// Enhancer rewrites a transcript with an AI model.
type Enhancer interface {
	Configured() bool
	Enhance(ctx context.Context, text string, durationSeconds float64, prompt domain.Prompt) (string, error)
}

// TranscriptionStore is the append-only record history.
type TranscriptionStore interface {
	Append(ctx context.Context, record domain.TranscriptionRecord) error
	Latest(ctx context.Context) (domain.TranscriptionRecord, bool, error)
	Recent(ctx context.Context, limit int) ([]domain.TranscriptionRecord, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	Model          string
	Language       string
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// StreamingProvider starts streaming transcription sessions.
type StreamingProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Paster types text at the current cursor location.
type Paster interface {
	Paste(ctx context.Context, text string, preserveClipboard bool) error
}

// PermissionChecker reports OS permissions that gate optional features.
type PermissionChecker interface {
	Accessibility() bool
	InputInjection() bool
}

// NotificationKind selects how a notification is presented.
type NotificationKind string

const (
	NotificationError   NotificationKind = "error"
	NotificationSuccess NotificationKind = "success"
	NotificationInfo    NotificationKind = "info"
)

// Notification is a user-facing message. Retryable notifications offer a retry action.
type Notification struct {
	Title     string
	Message   string
	Kind      NotificationKind
	Retryable bool
}

// Notifier shows user-facing notifications.
type Notifier interface {
	Notify(n Notification)
}

// Preferences is the mutable per-user state read by the pipeline.
type Preferences interface {
	CurrentModel() (domain.ModelRef, bool)
	AutoCopy() bool
	WordReplacement() bool
	EnhancementEnabled() bool
	SetEnhancementEnabled(enabled bool) error
	ActivePrompt() (domain.Prompt, bool)
	SetActivePrompt(id string) error
	Prompts() []domain.Prompt
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	RecorderVisibilityChanged(visible bool)
	FinalTranscript(raw string, transformed string)
	SessionError(code domain.ErrorCode, detail string)
}

// PromptDetector looks for prompt trigger words in a raw transcript.
type PromptDetector interface {
	Analyze(text string) domain.PromptDetectionResult
}
