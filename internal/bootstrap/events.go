package bootstrap

import (
	"log/slog"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
)

// LogSink is the EventSink for commands that run without a window.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: logger.OrDefault(log).With("component", "events")}
}

func (s LogSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.log.Debug("session state", "state", state, "reason", reason)
}

func (s LogSink) RecorderVisibilityChanged(visible bool) {
	s.log.Debug("recorder visibility", "visible", visible)
}

func (s LogSink) FinalTranscript(raw string, transformed string) {
	s.log.Info("transcript ready", "raw", raw, "final", transformed)
}

func (s LogSink) SessionError(code domain.ErrorCode, detail string) {
	s.log.Warn("session error", "code", code, "detail", detail)
}
