package domain

import "time"

// SessionState models the recording pipeline lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateRecording  SessionState = "recording"
	SessionStateStopping   SessionState = "stopping"
	SessionStateDelivering SessionState = "delivering"
	SessionStateError      SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady                          SessionStateReason = "ready"
	SessionReasonRecordingStarted               SessionStateReason = "recording_started"
	SessionReasonHandsFree                      SessionStateReason = "hands_free"
	SessionReasonTranscribing                   SessionStateReason = "transcribing"
	SessionReasonEnhancing                      SessionStateReason = "enhancing"
	SessionReasonTranscriptCopied               SessionStateReason = "transcript_copied"
	SessionReasonTranscriptPasted               SessionStateReason = "transcript_pasted"
	SessionReasonTranscriptReadyClipboardFailed SessionStateReason = "transcript_clipboard_failed"
	SessionReasonRecordingCancelled             SessionStateReason = "recording_cancelled"
	SessionReasonNoTranscript                   SessionStateReason = "no_transcript"
	SessionReasonTranscriptionFailed            SessionStateReason = "transcription_failed"
	SessionReasonRecordingFailed                SessionStateReason = "recording_failed"
	SessionReasonRetrySucceeded                 SessionStateReason = "retry_succeeded"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodeNoModel          ErrorCode = "no_model"
	ErrorCodeRecordingStart   ErrorCode = "recording_start"
	ErrorCodeRecordingPersist ErrorCode = "recording_persist"
	ErrorCodeAudioStop        ErrorCode = "audio_stop"
	ErrorCodeAudioStream      ErrorCode = "audio_stream"
	ErrorCodeTranscription    ErrorCode = "transcription"
	ErrorCodeEnhancement      ErrorCode = "enhancement"
	ErrorCodeRules            ErrorCode = "rules"
	ErrorCodeClipboard        ErrorCode = "clipboard"
	ErrorCodePermission       ErrorCode = "permission"
	ErrorCodeStore            ErrorCode = "store"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a streaming provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// ModelProvider says where a transcription model runs.
type ModelProvider string

const (
	ModelProviderLocal ModelProvider = "local"
	ModelProviderCloud ModelProvider = "cloud"
)

// ModelRef names the transcription model selected for a run.
type ModelRef struct {
	Name           string        `json:"name" yaml:"name"`
	Provider       ModelProvider `json:"provider" yaml:"provider"`
	Path           string        `json:"path,omitempty" yaml:"path,omitempty"`
	Cloud          string        `json:"cloud,omitempty" yaml:"cloud,omitempty"`
	CredentialsEnv string        `json:"credentialsEnv,omitempty" yaml:"credentials_env,omitempty"`
	Language       string        `json:"language,omitempty" yaml:"language,omitempty"`
}

func (m ModelRef) IsLocal() bool {
	return m.Provider == ModelProviderLocal
}

// FailedTextPrefix marks the text of a record whose transcription failed.
const FailedTextPrefix = "Transcription Failed: "

// TranscriptionRecord is one persisted pipeline result. Records are never mutated after append.
type TranscriptionRecord struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	EnhancedText    string    `json:"enhancedText,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	AudioPath       string    `json:"audioPath,omitempty"`
	ModelName       string    `json:"modelName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	Failed          bool      `json:"failed"`
	Error           string    `json:"error,omitempty"`
	RetryOf         string    `json:"retryOf,omitempty"`
}

// DeliveredText is the text that was pasted for this record.
func (r TranscriptionRecord) DeliveredText() string {
	if r.EnhancedText != "" {
		return r.EnhancedText
	}
	return r.Text
}

// Prompt is an enhancement instruction set that can be selected by shortcut or trigger word.
type Prompt struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Instructions string   `json:"instructions" yaml:"instructions"`
	TriggerWords []string `json:"triggerWords,omitempty" yaml:"trigger_words,omitempty"`
}

// PromptDetectionResult is produced and consumed within one pipeline run.
type PromptDetectionResult struct {
	ProcessedText  string
	ShouldEnableAI bool
	PromptID       string
	PriorEnabled   bool
	PriorPromptID  string
}

// StopResult is returned once recording is stopped and the transcript is delivered.
type StopResult struct {
	Record          TranscriptionRecord `json:"record"`
	RawTranscript   string              `json:"rawTranscript"`
	FinalTranscript string              `json:"finalTranscript"`
	Copied          bool                `json:"copied"`
	Pasted          bool                `json:"pasted"`
	Cancelled       bool                `json:"cancelled"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	HandsFree bool         `json:"handsFree"`
	Model     string       `json:"model,omitempty"`
	Message   string       `json:"message,omitempty"`
}
